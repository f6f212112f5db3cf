package model

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// AdminState 端口管理状态
type AdminState string

const (
	AdminEnabled  AdminState = "enabled"
	AdminDisabled AdminState = "disabled"
)

// OperState 端口运行状态
type OperState string

const (
	OperUp    OperState = "up"
	OperDown  OperState = "down"
	OperError OperState = "error"
)

// PortMode 交换端口模式
type PortMode string

const (
	ModeAccess  PortMode = "access"
	ModeTrunk   PortMode = "trunk"
	ModeUnknown PortMode = "unknown"
)

// PortRecord 单个端口的解析结果
// Identifier 使用设备短格式（如 Gi1/0/5），Status 保留设备原始状态字
type PortRecord struct {
	Identifier  string     `json:"identifier"`
	Description string     `json:"description,omitempty"`
	Admin       AdminState `json:"admin"`
	Oper        OperState  `json:"oper"`
	Status      string     `json:"status"`
	VlanID      int        `json:"vlan_id,omitempty"`
	VlanName    string     `json:"vlan_name,omitempty"`
	Mode        PortMode   `json:"mode"`
	Speed       string     `json:"speed,omitempty"`
	Duplex      string     `json:"duplex,omitempty"`
	Type        string     `json:"type,omitempty"`
}

// Snapshot 某一时刻全部端口状态的只读映射（标识唯一）
// 构造时复制输入，产出后不可修改
type Snapshot struct {
	ports map[string]PortRecord
}

// NewSnapshot 按记录构造快照；重复标识以后出现者为准
func NewSnapshot(records ...PortRecord) Snapshot {
	m := make(map[string]PortRecord, len(records))
	for _, r := range records {
		if r.Identifier == "" {
			continue
		}
		m[r.Identifier] = r
	}
	return Snapshot{ports: m}
}

// Len 端口数量
func (s Snapshot) Len() int { return len(s.ports) }

// Get 按标识取端口
func (s Snapshot) Get(id string) (PortRecord, bool) {
	r, ok := s.ports[id]
	return r, ok
}

// IDs 按接口自然顺序返回全部标识
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.ports))
	for id := range s.ports {
		ids = append(ids, id)
	}
	SortInterfaces(ids)
	return ids
}

// Records 按接口自然顺序返回全部记录
func (s Snapshot) Records() []PortRecord {
	ids := s.IDs()
	out := make([]PortRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.ports[id])
	}
	return out
}

// With 返回替换（或新增）若干记录后的新快照，原快照不变
func (s Snapshot) With(records ...PortRecord) Snapshot {
	m := make(map[string]PortRecord, len(s.ports)+len(records))
	for k, v := range s.ports {
		m[k] = v
	}
	for _, r := range records {
		if r.Identifier == "" {
			continue
		}
		m[r.Identifier] = r
	}
	return Snapshot{ports: m}
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Records())
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var records []PortRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	*s = NewSnapshot(records...)
	return nil
}

// 长接口名到短前缀的映射（顺序敏感：长者优先）
var interfacePrefixes = []struct {
	long  string
	short string
}{
	{"HundredGigabitEthernet", "Hu"},
	{"HundredGigE", "Hu"},
	{"FortyGigabitEthernet", "Fo"},
	{"TwentyFiveGigE", "Twe"},
	{"TwoGigabitEthernet", "Tw"},
	{"TenGigabitEthernet", "Te"},
	{"GigabitEthernet", "Gi"},
	{"FastEthernet", "Fa"},
	{"Port-channel", "Po"},
	{"Ethernet", "Et"},
	{"Vlan", "Vl"},
}

var interfacePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z\-]*\d+(?:/\d+)*(?:\.\d+)?$`)

// CanonicalPortID 将接口名规范为设备短格式：GigabitEthernet1/0/5 -> Gi1/0/5
func CanonicalPortID(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	lower := strings.ToLower(name)
	for _, p := range interfacePrefixes {
		if strings.HasPrefix(lower, strings.ToLower(p.long)) {
			rest := name[len(p.long):]
			if rest != "" && rest[0] >= '0' && rest[0] <= '9' {
				return p.short + rest
			}
		}
	}
	// 已是短格式时统一大小写：gi1/0/5 -> Gi1/0/5
	for _, p := range interfacePrefixes {
		if len(name) > len(p.short) && strings.EqualFold(name[:len(p.short)], p.short) {
			rest := name[len(p.short):]
			if rest[0] >= '0' && rest[0] <= '9' {
				return p.short + rest
			}
		}
	}
	return name
}

// IsPortID 判断字符串是否形如接口标识
func IsPortID(id string) bool {
	return interfacePattern.MatchString(id)
}

// SplitPortID 拆分为前缀与末位编号：Gi1/0/5 -> ("Gi1/0/", 5)
func SplitPortID(id string) (string, int, bool) {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	if i == len(id) || i == 0 {
		return id, 0, false
	}
	n, err := strconv.Atoi(id[i:])
	if err != nil {
		return id, 0, false
	}
	return id[:i], n, true
}

// SortInterfaces 按类型与数字分段自然排序
func SortInterfaces(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		return lessInterface(ids[i], ids[j])
	})
}

var digitsPattern = regexp.MustCompile(`\d+`)

func lessInterface(a, b string) bool {
	pa := strings.TrimRightFunc(a[:leadingAlpha(a)], func(r rune) bool { return r == '-' })
	pb := strings.TrimRightFunc(b[:leadingAlpha(b)], func(r rune) bool { return r == '-' })
	if pa != pb {
		return pa < pb
	}
	na := digitsPattern.FindAllString(a, -1)
	nb := digitsPattern.FindAllString(b, -1)
	for k := 0; k < len(na) && k < len(nb); k++ {
		x, _ := strconv.Atoi(na[k])
		y, _ := strconv.Atoi(nb[k])
		if x != y {
			return x < y
		}
	}
	if len(na) != len(nb) {
		return len(na) < len(nb)
	}
	return a < b
}

func leadingAlpha(s string) int {
	i := 0
	for i < len(s) && (s[i] < '0' || s[i] > '9') {
		i++
	}
	return i
}
