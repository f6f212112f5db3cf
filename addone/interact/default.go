package interact

import (
	"fmt"
	"strings"

	"github.com/swappnet/swapp/pkg/portrange"
)

// InteractDefaults 交互层默认运行参数
type InteractDefaults struct {
	CommandTimeoutSec int // 单条命令超时（秒）
	QuietAfterMS      int // 静默完成窗口（毫秒）
}

// Vocabulary 设备命令词汇表
type Vocabulary struct {
	EnterConfig    string   // 进入配置模式
	Interface      string   // 进入单接口上下文，%s 为接口名
	InterfaceRange string   // 进入接口范围上下文，%s 为范围表达式
	AdminUp        string   // 开启端口
	AdminDown      string   // 关闭端口
	AccessVlan     []string // 设置 access VLAN，%d 为 VLAN 号
	Description    string   // 设置描述，%s 为描述文本
	ExitContext    string   // 退出配置模式回到特权模式
	Save           string   // 保存配置

	QueryStatus         string // 端口状态表
	QueryStatusFallback string // 状态表不可用时的简表
	QuerySwitchport     string // switchport 明细
	QueryVlanNames      string // VLAN 名称表
	QueryMacTable       string // MAC 地址表
	QueryArp            string // ARP 表
	Probe               string // 健康探测

	SessionSetup []string // 登录后执行（关闭分页等）
	EnableCLI    string
	EnablePrompt string // enable 密码提示，用于自动应答

	PromptPattern       string
	ConfigPromptPattern string
	ErrorTokens         []string
}

// InteractPlugin 交互插件接口
type InteractPlugin interface {
	// Name 插件名称（如：default、cisco_ios）
	Name() string
	// Defaults 返回插件的默认运行参数
	Defaults() InteractDefaults
	// Vocabulary 返回平台命令词汇表
	Vocabulary() Vocabulary
}

// AdminSequence 生成开启/关闭端口的命令序列；多个端口使用 interface range
// 序列以 AdminUp/AdminDown 结尾，退出配置模式由调用方负责
func (v Vocabulary) AdminSequence(ids []string, enable bool) ([]string, error) {
	ctx, err := v.interfaceContext(ids)
	if err != nil {
		return nil, err
	}
	action := v.AdminDown
	if enable {
		action = v.AdminUp
	}
	return []string{v.EnterConfig, ctx, action}, nil
}

// AccessVlanSequence 生成设置 access VLAN 的命令序列
func (v Vocabulary) AccessVlanSequence(ids []string, vlan int) ([]string, error) {
	if vlan < 1 || vlan > 4094 {
		return nil, fmt.Errorf("vlan %d out of range 1-4094", vlan)
	}
	ctx, err := v.interfaceContext(ids)
	if err != nil {
		return nil, err
	}
	seq := []string{v.EnterConfig, ctx}
	for _, line := range v.AccessVlan {
		if strings.Contains(line, "%d") {
			line = fmt.Sprintf(line, vlan)
		}
		seq = append(seq, line)
	}
	return seq, nil
}

// DescriptionSequence 生成设置端口描述的命令序列
func (v Vocabulary) DescriptionSequence(id, text string) ([]string, error) {
	ctx, err := v.interfaceContext([]string{id})
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if text == "" {
		return []string{v.EnterConfig, ctx, "no " + strings.TrimSpace(strings.ReplaceAll(v.Description, "%s", ""))}, nil
	}
	return []string{v.EnterConfig, ctx, fmt.Sprintf(v.Description, text)}, nil
}

func (v Vocabulary) interfaceContext(ids []string) (string, error) {
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("no interface given")
	case 1:
		return fmt.Sprintf(v.Interface, ids[0]), nil
	}
	expr, err := portrange.InterfaceRanges(ids)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(v.InterfaceRange, expr), nil
}

// DefaultPlugin 系统默认交互插件（通用 IOS 风格 CLI）
type DefaultPlugin struct{}

func (p *DefaultPlugin) Name() string { return "default" }

func (p *DefaultPlugin) Defaults() InteractDefaults {
	return InteractDefaults{
		CommandTimeoutSec: 10,
		QuietAfterMS:      2000,
	}
}

func (p *DefaultPlugin) Vocabulary() Vocabulary {
	return Vocabulary{
		EnterConfig:    "configure terminal",
		Interface:      "interface %s",
		InterfaceRange: "interface range %s",
		AdminUp:        "no shutdown",
		AdminDown:      "shutdown",
		AccessVlan:     []string{"switchport mode access", "switchport access vlan %d"},
		Description:    "description %s",
		ExitContext:    "end",
		Save:           "write memory",

		QueryStatus:         "show interfaces status",
		QueryStatusFallback: "show ip interface brief",
		QuerySwitchport:     "show interfaces switchport",
		QueryVlanNames:      "show vlan brief",
		QueryMacTable:       "show mac address-table",
		QueryArp:            "show arp",
		Probe:               "show clock",

		SessionSetup: []string{"terminal length 0"},
		EnableCLI:    "enable",
		EnablePrompt: "password:",

		PromptPattern:       `^[\w.\-/\[\]]+(?:\([\w.\-/ ]+\))?[#>]\s*$`,
		ConfigPromptPattern: `\(config[^)]*\)#\s*$`,
		ErrorTokens: []string{
			"% Invalid input",
			"% Incomplete command",
			"% Ambiguous command",
			"% Unknown command",
			"% Error",
		},
	}
}
