// portctl 交换机端口的命令行入口
//
// 直接通过 SSH 会话操作设备，不依赖 HTTP 服务：
//
//	portctl status [--oper up] [--vlan 10]   刷新并打印端口表
//	portctl enable Gi1/0/5 Gi1/0/6           开启端口
//	portctl disable --range 1-4,7            按编号批量关闭
//	portctl vlan Gi1/0/5 20                  设置 access VLAN
//	portctl describe Gi1/0/5 "printer"       设置端口描述
//	portctl enqueue Gi1_0_5 disable          写入外部命令队列
//	portctl compact 1 2 3 5                  编号压缩为范围表达式
//	portctl simulate                         运行模拟交换机
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/swappnet/swapp/addone/interact/platforms/cisco_ios"
	"github.com/swappnet/swapp/internal/config"
	"github.com/swappnet/swapp/pkg/logger"
)

var (
	configPath string
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "portctl",
	Short:             "Switch port control over an interactive SSH session",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		return logger.Init(logger.Config{Level: level, Format: "text", Output: "console"})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newStatusCmd(),
		newStateCmd("enable"),
		newStateCmd("disable"),
		newVlanCmd(),
		newDescribeCmd(),
		newMacsCmd(),
		newArpCmd(),
		newEnqueueCmd(),
		newCompactCmd(),
		newExpandCmd(),
		newSimulateCmd(),
	)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	return cfg, nil
}
