package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/chroma/quick"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/devwelkin/cannedhttp/internal/client"
)

func newSendCmd(opts *options) *cobra.Command {
	var (
		rawHeaders []string
		noColor    bool
		timeout    time.Duration
	)

	sendCmd := &cobra.Command{
		Use:   "send METHOD [BODY]",
		Short: "Send one request in the server's start-line dialect and print the reply",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := client.Request{
				Method:  strings.ToUpper(args[0]),
				Headers: map[string]string{},
			}
			if len(args) == 2 {
				req.Body = args[1]
			}
			for _, h := range rawHeaders {
				name, value, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("invalid header %q, expected 'Name: value'", h)
				}
				req.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
			}

			addr := net.JoinHostPort(opts.cfg.Server.Host, strconv.Itoa(opts.cfg.Server.Port))
			if _, ok := req.Headers["Host"]; !ok {
				req.Headers["Host"] = addr
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			res, err := client.Send(ctx, addr, req)
			if err != nil {
				return err
			}

			if noColor {
				color.NoColor = true
			}
			printResponse(cmd.OutOrStdout(), res, !color.NoColor)
			return nil
		},
	}

	sendCmd.Flags().StringArrayVarP(&rawHeaders, "header", "H", nil, "extra request header, 'Name: value' (repeatable)")
	sendCmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	sendCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "give up after this long")

	return sendCmd
}

func printResponse(w io.Writer, res *client.Response, useColor bool) {
	statusColor := color.New(color.FgGreen, color.Bold)
	if res.StatusCode >= 500 {
		statusColor = color.New(color.FgRed, color.Bold)
	}
	statusColor.Fprintf(w, "%s %d %s\n", res.Proto, res.StatusCode, res.Reason)

	names := make([]string, 0, len(res.Headers))
	for name := range res.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s: %s\n", color.CyanString(name), res.Headers[name])
	}
	fmt.Fprintln(w)

	contentType, _ := res.Headers.Get("Content-Type")
	if useColor && strings.HasPrefix(contentType, "application/json") {
		if err := quick.Highlight(w, res.Body, "json", "terminal16m", "monokai"); err == nil {
			fmt.Fprintln(w)
			return
		}
	}
	fmt.Fprintln(w, res.Body)
}
