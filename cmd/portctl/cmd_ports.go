package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/swappnet/swapp/internal/model"
	"github.com/swappnet/swapp/internal/service"
	"github.com/swappnet/swapp/pkg/portrange"
	"github.com/swappnet/swapp/pkg/ssh"
)

const commandDeadline = 2 * time.Minute

// withEngine 建立一次性引擎（内存存储，不启动定时任务），结束后关闭会话
func withEngine(fn func(ctx context.Context, e *service.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Archive.Enabled = false
	e, err := service.NewEngine(cfg, ssh.NewClient(&ssh.Config{Timeout: cfg.Session.ConnectTimeout}), service.NewMemoryStore())
	if err != nil {
		return err
	}
	defer e.Supervisor.Close()

	ctx, cancel := context.WithTimeout(context.Background(), commandDeadline)
	defer cancel()
	return fn(ctx, e)
}

func newStatusCmd() *cobra.Command {
	var oper string
	var vlan int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Refresh and print the port table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, e *service.Engine) error {
				if _, err := e.Poller.RefreshOnce(ctx); err != nil {
					return err
				}
				printPorts(e.Poller.Current(), oper, vlan)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&oper, "oper", "", "filter by oper state (up/down)")
	cmd.Flags().IntVar(&vlan, "vlan", 0, "filter by access vlan")
	return cmd
}

func printPorts(snap model.Snapshot, oper string, vlan int) {
	fmt.Printf("%-12s %-14s %-9s %-6s %-6s %s\n", "PORT", "STATUS", "ADMIN", "VLAN", "MODE", "DESCRIPTION")
	n := 0
	for _, rec := range snap.Records() {
		if oper != "" && string(rec.Oper) != oper {
			continue
		}
		if vlan > 0 && rec.VlanID != vlan {
			continue
		}
		v := "-"
		if rec.VlanID > 0 {
			v = strconv.Itoa(rec.VlanID)
		}
		fmt.Printf("%-12s %-14s %-9s %-6s %-6s %s\n", rec.Identifier, rec.Status, rec.Admin, v, rec.Mode, rec.Description)
		n++
	}
	fmt.Printf("\n%d ports\n", n)
}

func newStateCmd(action string) *cobra.Command {
	var expr, prefix string

	cmd := &cobra.Command{
		Use:   action + " [ports...]",
		Short: cases.Title(language.English).String(action) + " switch ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			verb, err := service.ParseVerb(action)
			if err != nil {
				return err
			}
			ids := append([]string{}, args...)
			if expr != "" {
				nums, err := portrange.Expand(expr)
				if err != nil {
					return err
				}
				for _, n := range nums {
					ids = append(ids, prefix+strconv.Itoa(n))
				}
			}
			if len(ids) == 0 {
				return fmt.Errorf("no ports given: pass identifiers or --range")
			}
			return withEngine(func(ctx context.Context, e *service.Engine) error {
				res, err := e.Ports.SetAdminState(ctx, ids, verb)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %s (%d batches, saved=%v)\n", action, strings.Join(res.Ports, ","), res.Batches, res.Saved)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&expr, "range", "", "port numbers such as 1-4,7")
	cmd.Flags().StringVar(&prefix, "prefix", "Gi1/0/", "interface prefix used with --range")
	return cmd
}

func newVlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vlan <port> <vlan-id>",
		Short: "Set the access VLAN of a port",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vlan, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid vlan %q", args[1])
			}
			return withEngine(func(ctx context.Context, e *service.Engine) error {
				if _, err := e.Ports.SetAccessVlan(ctx, args[0], vlan); err != nil {
					return err
				}
				fmt.Printf("%s: access vlan %d\n", args[0], vlan)
				return nil
			})
		},
	}
}

func newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <port> [text]",
		Short: "Set or clear the description of a port",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := ""
			if len(args) == 2 {
				text = args[1]
			}
			return withEngine(func(ctx context.Context, e *service.Engine) error {
				_, err := e.Ports.SetDescription(ctx, args[0], text)
				return err
			})
		},
	}
}

func newMacsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "macs [port]",
		Short: "Print the MAC address table, optionally for one port",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port := ""
			if len(args) == 1 {
				port = args[0]
			}
			return withEngine(func(ctx context.Context, e *service.Engine) error {
				entries, err := e.Ports.MacTable(ctx, port)
				if err != nil {
					return err
				}
				fmt.Printf("%-6s %-16s %-9s %s\n", "VLAN", "MAC", "TYPE", "PORT")
				for _, m := range entries {
					fmt.Printf("%-6s %-16s %-9s %s\n", m.Vlan, m.MacAddress, m.Type, m.Port)
				}
				fmt.Printf("\n%d entries\n", len(entries))
				return nil
			})
		},
	}
}

func newArpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "arp",
		Short: "Print the ARP table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, e *service.Engine) error {
				entries, err := e.Ports.ArpTable(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%-16s %-5s %-16s %s\n", "ADDRESS", "AGE", "MAC", "INTERFACE")
				for _, a := range entries {
					fmt.Printf("%-16s %-5s %-16s %s\n", a.Address, a.Age, a.MacAddress, a.Interface)
				}
				fmt.Printf("\n%d entries\n", len(entries))
				return nil
			})
		},
	}
}

func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact <n>...",
		Short: "Compact port numbers into a range expression",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nums := make([]int, 0, len(args))
			for _, a := range args {
				for _, f := range strings.Split(a, ",") {
					n, err := strconv.Atoi(strings.TrimSpace(f))
					if err != nil {
						return fmt.Errorf("invalid number %q", f)
					}
					nums = append(nums, n)
				}
			}
			out, err := portrange.Compact(nums)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
}

func newExpandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expand <expr>",
		Short: "Expand a range expression such as 1-3,5",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nums, err := portrange.Expand(args[0])
			if err != nil {
				return err
			}
			parts := make([]string, len(nums))
			for i, n := range nums {
				parts[i] = strconv.Itoa(n)
			}
			fmt.Println(strings.Join(parts, " "))
			return nil
		},
	}
}
