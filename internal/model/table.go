package model

// MacEntry MAC 地址表中的一行
// Port 为设备短格式接口名；CPU 等非接口目标保留原文
type MacEntry struct {
	Vlan       string `json:"vlan"`
	MacAddress string `json:"mac_address"`
	Type       string `json:"type"`
	Port       string `json:"port"`
}

// ArpEntry ARP 表中的一行；Age 为分钟数，静态条目为 "-"
type ArpEntry struct {
	Address    string `json:"ip_address"`
	Age        string `json:"age"`
	MacAddress string `json:"mac_address"`
	Type       string `json:"type"`
	Interface  string `json:"interface,omitempty"`
}
