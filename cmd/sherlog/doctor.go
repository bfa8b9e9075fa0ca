package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/sherlog/pkg/agent"
	"github.com/codeready-toolchain/sherlog/pkg/mcp"
	"github.com/codeready-toolchain/sherlog/pkg/shell"
)

var errDoctorFailed = errors.New("one or more checks failed")

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the store, the LLM provider settings and every MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return runDoctor(cmd.Context(), a, cmd.OutOrStdout())
		},
	}
}

type checkLine struct {
	out    io.Writer
	styles shell.Styles
	failed bool
}

func (c *checkLine) ok(name, detail string) {
	fmt.Fprintf(c.out, "%s %-24s %s\n", c.styles.ToolOK.Render("✓"), name, c.styles.Muted.Render(detail))
}

func (c *checkLine) fail(name string, err error) {
	c.failed = true
	fmt.Fprintf(c.out, "%s %-24s %s\n", c.styles.Error.Render("✗"), name, err)
}

func runDoctor(ctx context.Context, a *app, out io.Writer) error {
	c := &checkLine{out: out, styles: shell.NewStyles(out)}

	if ids, err := a.store.ListIDs(ctx); err != nil {
		c.fail("store", err)
	} else {
		c.ok("store", fmt.Sprintf("%s, %d incidents", a.cfg.Store.Backend, len(ids)))
	}

	if provider, err := a.cfg.ActiveLLMProvider(); err != nil {
		c.fail("llm provider", err)
	} else if llm, err := agent.NewAnthropicClient(provider); err != nil {
		c.fail("llm provider", err)
	} else {
		c.ok("llm provider", llm.Model())
		_ = llm.Close()
	}

	if a.cfg.MCPServerRegistry.Len() > 0 {
		client := mcp.NewClient(a.cfg.MCPServerRegistry)
		defer func() { _ = client.Close() }()
		// failures are recorded on the client and reported by Check
		_ = client.Initialize(ctx, a.cfg.AllMCPServerIDs())

		for _, st := range client.Check(ctx) {
			name := "mcp " + st.ServerID
			if !st.Healthy {
				c.fail(name, errors.New(st.Error))
				continue
			}
			c.ok(name, fmt.Sprintf("%d tools, %s", st.ToolCount, st.Latency.Round(time.Millisecond)))
		}
	}

	if c.failed {
		return errDoctorFailed
	}
	return nil
}
