package parser

import (
	"regexp"
	"strings"

	"github.com/swappnet/swapp/internal/model"
)

const macToken = `[0-9a-fA-F]{4}\.[0-9a-fA-F]{4}\.[0-9a-fA-F]{4}`

const ipv4Token = `\d{1,3}(?:\.\d{1,3}){3}`

// rowPattern 表格行匹配规则，按顺序尝试，首个命中者生效
type rowPattern[T any] struct {
	name  string
	re    *regexp.Regexp
	build func(m map[string]string) T
}

var macPatterns = []rowPattern[model.MacEntry]{
	{
		//   10    0050.56aa.0001    DYNAMIC     Gi1/0/5
		name:  "mac-table",
		re:    regexp.MustCompile(`^(?P<vlan>\d{1,4}|All)\s+(?P<mac>` + macToken + `)\s+(?P<type>\S+)\s+(?P<port>\S+)$`),
		build: macEntry,
	},
	{
		// 10    0050.56aa.0001   dynamic ip,ipx,assigned,other GigabitEthernet1/0/5
		name:  "mac-table-protocols",
		re:    regexp.MustCompile(`^(?P<vlan>\d{1,4}|All)\s+(?P<mac>` + macToken + `)\s+(?P<type>\S+)\s+\S+\s+(?P<port>\S+)$`),
		build: macEntry,
	},
	{
		// * 10     0050.56aa.0001   dynamic  0         F      F    Eth1/5
		name:  "nxos",
		re:    regexp.MustCompile(`^[*+G]?\s*(?P<vlan>\d{1,4}|-)\s+(?P<mac>` + macToken + `)\s+(?P<type>\S+)\s+\S+\s+\S+\s+\S+\s+(?P<port>\S+)$`),
		build: macEntry,
	},
}

func macEntry(m map[string]string) model.MacEntry {
	port := m["port"]
	if id := model.CanonicalPortID(port); model.IsPortID(id) {
		port = id
	}
	return model.MacEntry{
		Vlan:       m["vlan"],
		MacAddress: strings.ToLower(m["mac"]),
		Type:       strings.ToUpper(m["type"]),
		Port:       port,
	}
}

var arpPatterns = []rowPattern[model.ArpEntry]{
	{
		// Internet  10.0.0.20              12   0050.56aa.0001  ARPA   Vlan10
		name:  "arp-row",
		re:    regexp.MustCompile(`^Internet\s+(?P<addr>` + ipv4Token + `)\s+(?P<age>\d+|-)\s+(?P<mac>` + macToken + `|Incomplete)\s+(?P<type>\S+)\s+(?P<iface>\S+)$`),
		build: arpEntry,
	},
	{
		// Internet  10.0.0.30               0   Incomplete      ARPA
		name:  "arp-incomplete",
		re:    regexp.MustCompile(`^Internet\s+(?P<addr>` + ipv4Token + `)\s+(?P<age>\d+|-)\s+(?P<mac>` + macToken + `|Incomplete)\s+(?P<type>\S+)$`),
		build: arpEntry,
	},
}

func arpEntry(m map[string]string) model.ArpEntry {
	mac := m["mac"]
	if mac != "Incomplete" {
		mac = strings.ToLower(mac)
	}
	return model.ArpEntry{
		Address:    m["addr"],
		Age:        m["age"],
		MacAddress: mac,
		Type:       m["type"],
		Interface:  m["iface"],
	}
}

// ParseMacTable 解析 show mac address-table；表头与汇总行被跳过，无条目时返回空切片
func ParseMacTable(raw string) []model.MacEntry {
	return matchRows(raw, macPatterns)
}

// ParseArpTable 解析 show arp
func ParseArpTable(raw string) []model.ArpEntry {
	return matchRows(raw, arpPatterns)
}

func matchRows[T any](raw string, patterns []rowPattern[T]) []T {
	out := make([]T, 0)
	for _, line := range splitLines(raw) {
		for _, p := range patterns {
			if m := p.re.FindStringSubmatch(line); m != nil {
				out = append(out, p.build(namedGroups(p.re, m)))
				break
			}
		}
	}
	return out
}
