package cisco_ios

import "github.com/swappnet/swapp/addone/interact"

// Plugin 为 cisco_ios 平台交互插件
type Plugin struct{}

func (p *Plugin) Name() string { return "cisco_ios" }

func (p *Plugin) Defaults() interact.InteractDefaults {
	// show interfaces switchport 在 48 口设备上输出较长
	return interact.InteractDefaults{
		CommandTimeoutSec: 15,
		QuietAfterMS:      1500,
	}
}

func (p *Plugin) Vocabulary() interact.Vocabulary {
	v := (&interact.DefaultPlugin{}).Vocabulary()
	v.SessionSetup = []string{"terminal length 0", "terminal width 0"}
	v.ErrorTokens = append(v.ErrorTokens,
		"% Bad mask",
		"% Command rejected",
		"% Interface range",
		"% Access VLAN does not exist",
	)
	return v
}

func init() {
	interact.Register("cisco_ios", &Plugin{})
}
