package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/swappnet/swapp/internal/model"
)

var (
	nameHeaderRe   = regexp.MustCompile(`^Name:\s*(\S+)`)
	adminModeRe    = regexp.MustCompile(`^Administrative Mode:\s*(.+)$`)
	operModeRe     = regexp.MustCompile(`^Operational Mode:\s*(.+)$`)
	accessVlanRe   = regexp.MustCompile(`^Access Mode VLAN:\s*(\d+)(?:\s*\((.*)\))?`)
	nativeVlanRe   = regexp.MustCompile(`^Trunking Native Mode VLAN:\s*(\d+)(?:\s*\((.*)\))?`)
	vlanBriefRowRe = regexp.MustCompile(`^(\d{1,4})\s+(\S+)\s+(active|act/lshut|act/unsup|suspended|sus/lshut)\b`)
)

// switchportFacts 单个接口 switchport 明细中累积的事实
type switchportFacts struct {
	id         string
	adminMode  string
	operMode   string
	accessVlan int
	accessName string
	nativeVlan int
	nativeName string
}

func (f *switchportFacts) mode() model.PortMode {
	mode := strings.ToLower(f.operMode)
	if mode == "" || strings.Contains(mode, "down") {
		mode = strings.ToLower(f.adminMode)
	}
	switch {
	case strings.Contains(mode, "trunk"):
		return model.ModeTrunk
	case strings.Contains(mode, "access"):
		return model.ModeAccess
	}
	return model.ModeUnknown
}

// apply 将事实写入记录
func (f *switchportFacts) apply(rec model.PortRecord, names map[int]string) model.PortRecord {
	if m := f.mode(); m != model.ModeUnknown {
		rec.Mode = m
	}
	vlan, name := f.accessVlan, f.accessName
	if rec.Mode == model.ModeTrunk && f.nativeVlan > 0 {
		vlan, name = f.nativeVlan, f.nativeName
	}
	if vlan > 0 {
		rec.VlanID = vlan
		rec.VlanName = ""
		if name != "" && !strings.EqualFold(name, "Inactive") {
			rec.VlanName = name
		}
	}
	if rec.VlanName == "" && rec.VlanID > 0 {
		rec.VlanName = names[rec.VlanID]
	}
	return rec
}

// ParseVlanAssignments 以 switchport 明细和 VLAN 名称表丰富已有快照
// 明细以 "Name:" 行切分接口；下一个接口头或输入结束时提交当前接口
// 快照中不存在的接口被忽略；两段文本为空时原样返回
func ParseVlanAssignments(rawSwitchport, rawVlanNames string, existing model.Snapshot) model.Snapshot {
	names := ParseVlanNames(rawVlanNames)
	var updates []model.PortRecord

	var cur *switchportFacts
	commit := func() {
		if cur == nil {
			return
		}
		if rec, ok := existing.Get(cur.id); ok {
			updates = append(updates, cur.apply(rec, names))
		}
		cur = nil
	}

	for _, line := range splitLines(rawSwitchport) {
		if m := nameHeaderRe.FindStringSubmatch(line); m != nil {
			commit()
			cur = &switchportFacts{id: model.CanonicalPortID(m[1])}
			continue
		}
		if cur == nil {
			continue
		}
		if m := adminModeRe.FindStringSubmatch(line); m != nil {
			cur.adminMode = strings.TrimSpace(m[1])
		} else if m := operModeRe.FindStringSubmatch(line); m != nil {
			cur.operMode = strings.TrimSpace(m[1])
		} else if m := accessVlanRe.FindStringSubmatch(line); m != nil {
			cur.accessVlan, _ = strconv.Atoi(m[1])
			cur.accessName = strings.TrimSpace(m[2])
		} else if m := nativeVlanRe.FindStringSubmatch(line); m != nil {
			cur.nativeVlan, _ = strconv.Atoi(m[1])
			cur.nativeName = strings.TrimSpace(m[2])
		}
	}
	commit()

	// 仅有 VLAN 名称表时补全名称
	if len(names) > 0 {
		touched := make(map[string]struct{}, len(updates))
		for _, u := range updates {
			touched[u.Identifier] = struct{}{}
		}
		for _, rec := range existing.Records() {
			if _, ok := touched[rec.Identifier]; ok {
				continue
			}
			if rec.VlanID > 0 && rec.VlanName == "" {
				if name, ok := names[rec.VlanID]; ok {
					rec.VlanName = name
					updates = append(updates, rec)
				}
			}
		}
	}

	if len(updates) == 0 {
		return existing
	}
	return existing.With(updates...)
}

// ParseVlanNames 解析 show vlan brief，返回 VLAN 号到名称的映射
func ParseVlanNames(raw string) map[int]string {
	names := make(map[int]string)
	for _, line := range splitLines(raw) {
		m := vlanBriefRowRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		names[id] = m[2]
	}
	return names
}
