package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/chatwidget/internal/model/chat"
	"github.com/zhouzirui/chatwidget/internal/widget/intake"
	"github.com/zhouzirui/chatwidget/internal/widget/session"
	"github.com/zhouzirui/chatwidget/internal/widget/upload"
)

func newAskCmd(root *rootOptions) *cobra.Command {
	var attach []string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Send one question and print the reply as it streams",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := ""
			if len(args) > 0 {
				question = args[0]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), root.timeout)
			defer cancel()
			return runAsk(ctx, cmd.OutOrStdout(), root, question, attach)
		},
	}
	cmd.Flags().StringArrayVar(&attach, "attach", nil, "file to attach (repeatable)")
	return cmd
}

func runAsk(ctx context.Context, out io.Writer, root *rootOptions, question string, paths []string) error {
	cfg := root.widget

	files := make([]intake.File, 0, len(paths))
	for _, p := range paths {
		f, err := intake.FromPath(p)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	printer := newTurnPrinter(out)
	sess, err := session.New(session.Options{
		Streamer:     session.NewHTTPStreamer(cfg.StreamURL, cfg.APIKey, nil),
		Uploader:     upload.New(cfg.UploadURL, upload.WithCredential(cfg.APIKey)),
		Limits:       cfg.Limits(),
		NoticeTTL:    cfg.NoticeTTL,
		Observers:    []session.Observer{printer},
		PanelVisible: true,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	if len(files) > 0 {
		res, err := sess.Stage(files)
		if err != nil {
			return err
		}
		if res.Notice != nil {
			return res.Notice
		}
		for _, f := range res.Accepted {
			fmt.Fprintf(out, "attached %s (%s)\n", f.File.Name, f.SizeLabel())
		}
	}

	id, err := sess.Send(question)
	if err != nil {
		return err
	}
	printer.watch(id)

	select {
	case <-printer.done:
	case <-ctx.Done():
		_ = sess.Cancel()
		return ctx.Err()
	}
	return printer.result()
}

// turnPrinter writes the bot reply of one turn as it grows and reports when
// the turn is over.
type turnPrinter struct {
	out  io.Writer
	done chan struct{}

	mu      sync.Mutex
	userID  string
	pending []session.Snapshot
	printed int
	typing  bool
	closed  bool
	err     error
}

func newTurnPrinter(out io.Writer) *turnPrinter {
	return &turnPrinter{out: out, done: make(chan struct{})}
}

// watch starts following the turn whose user message is id. Snapshots that
// arrived before the id was known are replayed.
func (p *turnPrinter) watch(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userID = id
	pending := p.pending
	p.pending = nil
	for _, s := range pending {
		p.consume(s)
	}
}

// OnState implements session.Observer.
func (p *turnPrinter) OnState(s session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.userID == "" {
		p.pending = append(p.pending, s)
		return
	}
	p.consume(s)
}

func (p *turnPrinter) consume(s session.Snapshot) {
	if p.closed {
		return
	}
	userIdx := -1
	for i, m := range s.Messages {
		if m.ID == p.userID {
			userIdx = i
			break
		}
	}
	if userIdx < 0 {
		return
	}
	if s.Messages[userIdx].Status == chat.StatusError {
		p.fail(s.Notice)
		return
	}

	if s.Typing {
		p.typing = true
	}

	var reply *chat.Message
	for i := len(s.Messages) - 1; i > userIdx; i-- {
		if s.Messages[i].Sender == chat.SenderBot {
			reply = &s.Messages[i]
			break
		}
	}
	if reply != nil && reply.Status != chat.StatusError && len(reply.Text) > p.printed {
		fmt.Fprint(p.out, reply.Text[p.printed:])
		p.printed = len(reply.Text)
	}

	if !p.typing || s.Typing || s.OpenMessageID != "" {
		return
	}
	if p.printed > 0 {
		fmt.Fprintln(p.out)
	}
	if reply != nil && reply.Status == chat.StatusError {
		p.fail(s.Notice)
		return
	}
	p.finish()
}

func (p *turnPrinter) fail(notice string) {
	notice = strings.TrimSpace(notice)
	if notice == "" {
		notice = "reply failed"
	}
	p.err = errors.New(notice)
	p.finish()
}

func (p *turnPrinter) finish() {
	p.closed = true
	close(p.done)
}

func (p *turnPrinter) result() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
