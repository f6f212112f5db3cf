package parser

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/swappnet/swapp/internal/model"
)

// ErrParseIncomplete 输入缺少可识别的结构
var ErrParseIncomplete = errors.New("parse incomplete")

// 状态字（show interfaces status / show ip interface brief）
const statusTokens = `connected|notconnect|notconnected|disabled|err-disabled|inactive|suspended|monitoring|sfpAbsent|xcvrAbsent|noOperMem|faulty|administratively down|up|down`

const portToken = `[A-Za-z][A-Za-z\-]*\d+(?:/\d+)*(?:\.\d+)?`

// linePattern 行匹配规则，按顺序尝试，首个命中者生效
type linePattern struct {
	name  string
	re    *regexp.Regexp
	build func(m map[string]string) model.PortRecord
}

var portPatterns = []linePattern{
	{
		// Gi1/0/1   uplink to core     connected    trunk      a-full a-1000 10/100/1000BaseTX
		name: "status-table",
		re: regexp.MustCompile(`^(?P<port>` + portToken + `)\s+(?:(?P<name>.*?)\s+)?` +
			`(?P<status>` + statusTokens + `)\s+(?P<vlan>\d+|trunk|routed|unassigned)\s+` +
			`(?P<duplex>a-full|a-half|full|half|auto)\s+(?P<speed>a-\d+[A-Za-z]*|\d+[A-Za-z]*|auto)(?:\s+(?P<type>.+))?$`),
		build: func(m map[string]string) model.PortRecord {
			rec := recordFromStatus(m["port"], m["status"])
			rec.Description = strings.TrimSpace(m["name"])
			rec.Duplex = m["duplex"]
			rec.Speed = m["speed"]
			rec.Type = strings.TrimSpace(m["type"])
			switch m["vlan"] {
			case "trunk":
				rec.Mode = model.ModeTrunk
			case "routed", "unassigned":
			default:
				if id, err := strconv.Atoi(m["vlan"]); err == nil {
					rec.VlanID = id
					rec.Mode = model.ModeAccess
				}
			}
			return rec
		},
	},
	{
		// GigabitEthernet1/0/1   unassigned   YES unset  administratively down down
		name: "ip-brief",
		re: regexp.MustCompile(`^(?P<port>` + portToken + `)\s+\S+\s+(?:YES|NO)\s+\S+\s+` +
			`(?P<status>administratively down|up|down)\s+(?P<protocol>up|down)\s*$`),
		build: func(m map[string]string) model.PortRecord {
			rec := recordFromStatus(m["port"], m["status"])
			if rec.Admin == model.AdminEnabled && m["protocol"] == "up" {
				rec.Oper = model.OperUp
			} else {
				rec.Oper = model.OperDown
			}
			return rec
		},
	},
	{
		// 兜底：接口名后任意位置出现状态字
		name: "fallback",
		re:   regexp.MustCompile(`^(?P<port>` + portToken + `)\s+(?:.*?\s)?(?P<status>` + statusTokens + `)(?:\s|$)`),
		build: func(m map[string]string) model.PortRecord {
			return recordFromStatus(m["port"], m["status"])
		},
	},
}

// recordFromStatus 由设备状态字推导管理/运行状态
func recordFromStatus(port, status string) model.PortRecord {
	rec := model.PortRecord{
		Identifier: model.CanonicalPortID(port),
		Status:     status,
		Admin:      model.AdminEnabled,
		Oper:       model.OperDown,
		Mode:       model.ModeUnknown,
	}
	switch strings.ToLower(status) {
	case "connected", "up":
		rec.Oper = model.OperUp
	case "disabled", "administratively down":
		rec.Admin = model.AdminDisabled
	case "err-disabled", "faulty":
		rec.Oper = model.OperError
	}
	return rec
}

// ParsePortTable 解析端口状态表为快照；无可识别行时返回空快照
func ParsePortTable(raw string) model.Snapshot {
	snap, _ := ParsePortTableStrict(raw)
	return snap
}

// ParsePortTableStrict 同 ParsePortTable，无任何命中时返回 ErrParseIncomplete
func ParsePortTableStrict(raw string) (model.Snapshot, error) {
	var records []model.PortRecord
	for _, line := range splitLines(raw) {
		if rec, ok := matchPortLine(line); ok {
			records = append(records, rec)
		}
	}
	snap := model.NewSnapshot(records...)
	if snap.Len() == 0 {
		return snap, ErrParseIncomplete
	}
	return snap, nil
}

func matchPortLine(line string) (model.PortRecord, bool) {
	for _, p := range portPatterns {
		m := p.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		rec := p.build(namedGroups(p.re, m))
		if !model.IsPortID(rec.Identifier) {
			return model.PortRecord{}, false
		}
		return rec, true
	}
	return model.PortRecord{}, false
}

func namedGroups(re *regexp.Regexp, m []string) map[string]string {
	groups := make(map[string]string, len(m))
	for i, name := range re.SubexpNames() {
		if name != "" {
			groups[name] = m[i]
		}
	}
	return groups
}

func splitLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "---") {
			continue
		}
		out = append(out, line)
	}
	return out
}
