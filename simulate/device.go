package simulate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/swappnet/swapp/internal/model"
)

const invalidInput = "% Invalid input detected at '^' marker."

// 长格式接口前缀，用于 show ip interface brief 与 switchport 明细
var longNames = map[string]string{
	"Gi": "GigabitEthernet",
	"Te": "TenGigabitEthernet",
	"Fa": "FastEthernet",
}

type simPort struct {
	id          string
	description string
	shutdown    bool
	link        bool
	trunk       bool
	vlan        int
	media       string
}

func (p *simPort) status() string {
	switch {
	case p.shutdown:
		return "disabled"
	case p.link:
		return "connected"
	}
	return "notconnect"
}

func (p *simPort) longName() string {
	prefix, _, _ := model.SplitPortID(p.id)
	for short, long := range longNames {
		if strings.HasPrefix(prefix, short) {
			return long + strings.TrimPrefix(p.id, short)
		}
	}
	return p.id
}

// Device 模拟交换机的共享状态；所有会话看到同一份端口表
type Device struct {
	mu       sync.Mutex
	hostname string
	ports    map[string]*simPort
	order    []string
	vlans    map[int]string
	saves    int
}

// NewDevice 按配置生成端口表：接入口 Gi1/0/1..N，上联口 Te1/1/1..M
func NewDevice(cfg Config) *Device {
	d := &Device{
		hostname: cfg.Hostname,
		ports:    make(map[string]*simPort),
		vlans:    map[int]string{1: "default"},
	}
	for id, name := range cfg.Vlans {
		d.vlans[id] = name
	}
	linked := make(map[string]bool, len(cfg.Connected))
	for _, id := range cfg.Connected {
		linked[model.CanonicalPortID(id)] = true
	}
	for i := 1; i <= cfg.AccessPorts; i++ {
		d.addPort(&simPort{id: fmt.Sprintf("Gi1/0/%d", i), vlan: cfg.DefaultVlan, media: "10/100/1000BaseTX"})
	}
	for i := 1; i <= cfg.UplinkPorts; i++ {
		d.addPort(&simPort{id: fmt.Sprintf("Te1/1/%d", i), vlan: 1, trunk: true, media: "SFP-10GBase-SR"})
	}
	for id, p := range d.ports {
		p.link = linked[id]
	}
	for _, id := range cfg.Shutdown {
		if p, ok := d.ports[model.CanonicalPortID(id)]; ok {
			p.shutdown = true
		}
	}
	return d
}

func (d *Device) addPort(p *simPort) {
	if p.vlan <= 0 {
		p.vlan = 1
	}
	d.ports[p.id] = p
	d.order = append(d.order, p.id)
}

// SetLink 模拟线缆插拔
func (d *Device) SetLink(id string, up bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.ports[model.CanonicalPortID(id)]
	if ok {
		p.link = up
	}
	return ok
}

// PortState 返回端口当前的管理状态、运行状态与 VLAN
func (d *Device) PortState(id string) (shutdown bool, status string, vlan int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.ports[model.CanonicalPortID(id)]
	if !ok {
		return false, "", 0, false
	}
	return p.shutdown, p.status(), p.vlan, true
}

// Description 返回端口描述
func (d *Device) Description(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.ports[model.CanonicalPortID(id)]; ok {
		return p.description
	}
	return ""
}

// Saves 已执行 write memory 的次数
func (d *Device) Saves() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saves
}

// resolveRange 解析 "Gi1/0/1-3,Gi1/0/5" 形式的接口范围
func (d *Device) resolveRange(expr string) ([]*simPort, bool) {
	var out []*simPort
	for _, tok := range strings.Split(expr, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil, false
		}
		head, hi := tok, -1
		if i := strings.LastIndex(tok, "-"); i > 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(tok[i+1:])); err == nil {
				head, hi = strings.TrimSpace(tok[:i]), n
			}
		}
		id := model.CanonicalPortID(head)
		if hi < 0 {
			p, ok := d.ports[id]
			if !ok {
				return nil, false
			}
			out = append(out, p)
			continue
		}
		prefix, lo, ok := model.SplitPortID(id)
		if !ok || hi < lo {
			return nil, false
		}
		for n := lo; n <= hi; n++ {
			p, ok := d.ports[fmt.Sprintf("%s%d", prefix, n)]
			if !ok {
				return nil, false
			}
			out = append(out, p)
		}
	}
	return out, len(out) > 0
}

func (d *Device) statusTable() string {
	var b strings.Builder
	b.WriteString("\r\nPort      Name               Status       Vlan       Duplex  Speed Type\r\n")
	for _, id := range d.order {
		p := d.ports[id]
		vlan := strconv.Itoa(p.vlan)
		if p.trunk {
			vlan = "trunk"
		}
		duplex, speed := "auto", "auto"
		if p.link && !p.shutdown {
			duplex, speed = "a-full", "a-1000"
		}
		name := p.description
		if len(name) > 18 {
			name = name[:18]
		}
		fmt.Fprintf(&b, "%-9s %-18s %-12s %-10s %6s %6s %s\r\n", p.id, name, p.status(), vlan, duplex, speed, p.media)
	}
	return b.String()
}

func (d *Device) ipBrief() string {
	var b strings.Builder
	b.WriteString("Interface              IP-Address      OK? Method Status                Protocol\r\n")
	for _, id := range d.order {
		p := d.ports[id]
		status, proto := "down", "down"
		switch {
		case p.shutdown:
			status = "administratively down"
		case p.link:
			status, proto = "up", "up"
		}
		fmt.Fprintf(&b, "%-22s %-15s YES unset  %-21s %s\r\n", p.longName(), "unassigned", status, proto)
	}
	return b.String()
}

func (d *Device) vlanLabel(id int) string {
	if name, ok := d.vlans[id]; ok {
		return name
	}
	return "Inactive"
}

func (d *Device) switchportDetail() string {
	var b strings.Builder
	for _, id := range d.order {
		p := d.ports[id]
		admin, oper := "static access", "static access"
		if p.trunk {
			admin, oper = "trunk", "trunk"
		}
		if !p.link || p.shutdown {
			oper = "down"
		}
		fmt.Fprintf(&b, "Name: %s\r\n", p.id)
		b.WriteString("Switchport: Enabled\r\n")
		fmt.Fprintf(&b, "Administrative Mode: %s\r\n", admin)
		fmt.Fprintf(&b, "Operational Mode: %s\r\n", oper)
		b.WriteString("Administrative Trunking Encapsulation: dot1q\r\n")
		b.WriteString("Negotiation of Trunking: Off\r\n")
		access := p.vlan
		if p.trunk {
			access = 1
		}
		fmt.Fprintf(&b, "Access Mode VLAN: %d (%s)\r\n", access, d.vlanLabel(access))
		native := 1
		if p.trunk {
			native = p.vlan
		}
		fmt.Fprintf(&b, "Trunking Native Mode VLAN: %d (%s)\r\n\r\n", native, d.vlanLabel(native))
	}
	return b.String()
}

func (d *Device) vlanBrief() string {
	ids := make([]int, 0, len(d.vlans))
	for id := range d.vlans {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	members := make(map[int][]string)
	for _, pid := range d.order {
		p := d.ports[pid]
		if !p.trunk {
			members[p.vlan] = append(members[p.vlan], p.id)
		}
	}
	var b strings.Builder
	b.WriteString("\r\nVLAN Name                             Status    Ports\r\n")
	b.WriteString("---- -------------------------------- --------- -------------------------------\r\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "%-4d %-32s %-9s %s\r\n", id, d.vlans[id], "active", strings.Join(members[id], ", "))
	}
	return b.String()
}

// portMAC 由端口序号生成稳定的终端 MAC
func portMAC(idx int) string {
	return fmt.Sprintf("0050.56%02x.%04x", idx>>16&0xff, idx&0xffff)
}

// macTable 每个已连接的接入口学到一个终端 MAC
func (d *Device) macTable() string {
	var b strings.Builder
	b.WriteString("          Mac Address Table\r\n")
	b.WriteString("-------------------------------------------\r\n\r\n")
	b.WriteString("Vlan    Mac Address       Type        Ports\r\n")
	b.WriteString("----    -----------       --------    -----\r\n")
	b.WriteString(" All    0100.0ccc.cccc    STATIC      CPU\r\n")
	count := 1
	for i, id := range d.order {
		p := d.ports[id]
		if p.trunk || p.shutdown || !p.link {
			continue
		}
		fmt.Fprintf(&b, "%4d    %s    DYNAMIC     %s\r\n", p.vlan, portMAC(i+1), p.id)
		count++
	}
	fmt.Fprintf(&b, "Total Mac Addresses for this criterion: %d\r\n", count)
	return b.String()
}

// arpTable 网关条目加上各已连接终端；地址按 VLAN 与端口序号分配
func (d *Device) arpTable() string {
	var b strings.Builder
	b.WriteString("Protocol  Address          Age (min)  Hardware Addr   Type   Interface\r\n")
	b.WriteString("Internet  10.0.1.1                -   0011.2233.4455  ARPA   Vlan1\r\n")
	for i, id := range d.order {
		p := d.ports[id]
		if p.trunk || p.shutdown || !p.link {
			continue
		}
		addr := fmt.Sprintf("10.0.%d.%d", p.vlan%256, 10+i%240)
		fmt.Fprintf(&b, "%-9s %-16s %5d   %s  ARPA   Vlan%d\r\n", "Internet", addr, i%60, portMAC(i+1), p.vlan)
	}
	return b.String()
}

// cli 单个会话的命令行状态
type cli struct {
	dev        *Device
	enablePw   string
	mode       string // user | exec | config | config-if | config-vlan
	selected   []*simPort
	vlan       int
	awaitingPw bool
	closed     bool
}

func newCLI(dev *Device, enablePw string) *cli {
	mode := "exec"
	if enablePw != "" {
		mode = "user"
	}
	return &cli{dev: dev, enablePw: enablePw, mode: mode}
}

func (c *cli) prompt() string {
	host := c.dev.hostname
	switch c.mode {
	case "user":
		return host + ">"
	case "config":
		return host + "(config)#"
	case "config-if":
		if len(c.selected) > 1 {
			return host + "(config-if-range)#"
		}
		return host + "(config-if)#"
	case "config-vlan":
		return host + "(config-vlan)#"
	}
	return host + "#"
}

// words 判断输入是否逐词匹配关键字（允许缩写，如 "sh int status"）
func words(input []string, keywords ...string) bool {
	if len(input) != len(keywords) {
		return false
	}
	for i, w := range input {
		kw := keywords[i]
		if strings.EqualFold(w, kw) {
			continue
		}
		if !strings.HasPrefix(kw, strings.ToLower(w)) {
			return false
		}
	}
	return true
}

func rejectLine(line string) string {
	return strings.Repeat(" ", len(line)/2) + "^\r\n" + invalidInput + "\r\n"
}

// handle 执行一行输入，返回命令输出（不含回显与提示符）
func (c *cli) handle(line string) string {
	if c.awaitingPw {
		c.awaitingPw = false
		if line == c.enablePw {
			c.mode = "exec"
			return ""
		}
		return "% Access denied\r\n"
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}

	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()

	switch {
	case words(fields, "end") && c.mode != "user" && c.mode != "exec":
		c.mode, c.selected = "exec", nil
		return ""
	case words(fields, "exit"):
		switch c.mode {
		case "config-if", "config-vlan":
			c.mode, c.selected = "config", nil
		case "config":
			c.mode = "exec"
		default:
			c.closed = true
		}
		return ""
	case len(fields) > 1 && words(fields[:1], "do") && c.mode != "user" && c.mode != "exec":
		return c.execCommand(strings.TrimSpace(strings.TrimSpace(line)[len(fields[0]):]), fields[1:])
	}

	switch c.mode {
	case "user", "exec":
		return c.execCommand(line, fields)
	case "config":
		return c.configCommand(line, fields)
	case "config-if":
		return c.interfaceCommand(line, fields)
	case "config-vlan":
		if len(fields) == 2 && words(fields[:1], "name") {
			c.dev.vlans[c.vlan] = fields[1]
			return ""
		}
		return c.configCommand(line, fields)
	}
	return rejectLine(line)
}

func (c *cli) execCommand(line string, f []string) string {
	d := c.dev
	switch {
	case words(f, "enable"):
		if c.mode == "user" {
			c.awaitingPw = true
		}
		return ""
	case words(f, "disable"):
		if c.enablePw != "" {
			c.mode = "user"
		}
		return ""
	case len(f) == 3 && words(f[:2], "terminal", "length"), len(f) == 3 && words(f[:2], "terminal", "width"):
		return ""
	case words(f, "show", "clock"):
		return time.Now().UTC().Format("*15:04:05.000 MST Mon Jan 2 2006") + "\r\n"
	case words(f, "show", "interfaces", "status"):
		return d.statusTable()
	case words(f, "show", "interfaces", "switchport"):
		return d.switchportDetail()
	case words(f, "show", "ip", "interface", "brief"):
		return d.ipBrief()
	case words(f, "show", "vlan", "brief"):
		return d.vlanBrief()
	case words(f, "show", "mac", "address-table"):
		return d.macTable()
	case words(f, "show", "arp"):
		return d.arpTable()
	case words(f, "show"):
		return "% Incomplete command.\r\n"
	}
	if c.mode == "user" {
		return rejectLine(line)
	}
	switch {
	case words(f, "configure", "terminal"):
		c.mode = "config"
		return "Enter configuration commands, one per line.  End with CNTL/Z.\r\n"
	case words(f, "write", "memory"), words(f, "write"):
		d.saves++
		return "Building configuration...\r\n[OK]\r\n"
	}
	return rejectLine(line)
}

func (c *cli) configCommand(line string, f []string) string {
	d := c.dev
	switch {
	case len(f) >= 3 && words(f[:2], "interface", "range"):
		ports, ok := d.resolveRange(strings.Join(f[2:], ""))
		if !ok {
			return "% Interface range command failed: invalid interface\r\n"
		}
		c.mode, c.selected = "config-if", ports
		return ""
	case len(f) >= 2 && words(f[:1], "interface"):
		ports, ok := d.resolveRange(strings.Join(f[1:], ""))
		if !ok || len(ports) != 1 {
			return rejectLine(line)
		}
		c.mode, c.selected = "config-if", ports
		return ""
	case len(f) == 2 && words(f[:1], "vlan"):
		id, err := strconv.Atoi(f[1])
		if err != nil || id < 1 || id > 4094 {
			return "% Bad VLAN list\r\n"
		}
		if _, ok := d.vlans[id]; !ok {
			d.vlans[id] = fmt.Sprintf("VLAN%04d", id)
		}
		c.mode, c.vlan = "config-vlan", id
		return ""
	}
	return rejectLine(line)
}

func (c *cli) interfaceCommand(line string, f []string) string {
	d := c.dev
	switch {
	case words(f, "shutdown"):
		for _, p := range c.selected {
			p.shutdown = true
		}
		return ""
	case words(f, "no", "shutdown"):
		for _, p := range c.selected {
			p.shutdown = false
		}
		return ""
	case words(f, "switchport", "mode", "access"):
		for _, p := range c.selected {
			p.trunk = false
		}
		return ""
	case words(f, "switchport", "mode", "trunk"):
		for _, p := range c.selected {
			p.trunk = true
		}
		return ""
	case len(f) == 4 && words(f[:3], "switchport", "access", "vlan"):
		id, err := strconv.Atoi(f[3])
		if err != nil || id < 1 || id > 4094 {
			return rejectLine(line)
		}
		var out string
		if _, ok := d.vlans[id]; !ok {
			d.vlans[id] = fmt.Sprintf("VLAN%04d", id)
			out = fmt.Sprintf("%% Access VLAN does not exist. Creating vlan %d\r\n", id)
		}
		for _, p := range c.selected {
			p.vlan = id
		}
		return out
	case len(f) >= 2 && words(f[:1], "description"):
		text := strings.TrimSpace(strings.TrimSpace(line)[len(f[0]):])
		for _, p := range c.selected {
			p.description = text
		}
		return ""
	case words(f, "no", "description"):
		for _, p := range c.selected {
			p.description = ""
		}
		return ""
	}
	// 其余配置命令按全局配置处理（如切换到另一个接口）
	return c.configCommand(line, f)
}
