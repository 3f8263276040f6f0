package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/satriahrh/kmfl/server/adapters/stt"
	"github.com/satriahrh/kmfl/server/domain/entities"
	"github.com/satriahrh/kmfl/server/usecase"
)

// console drives a controller from typed lines, each line standing in for a
// final recognition result, and prints everything the controller emits.
type console struct {
	out   io.Writer
	mu    sync.Mutex
	relay *stt.RelaySpeechToText
	ctrl  *usecase.Controller
}

func newConsole(out io.Writer, responder usecase.Responder, cfg usecase.ControllerConfig, logger *zap.Logger, c clock.Clock) *console {
	con := &console{out: out}
	con.relay = stt.NewRelaySpeechToText(con.recognition, logger)
	con.ctrl = usecase.NewController(con.relay, con, nil, responder, con, cfg, logger, usecase.WithClock(c))
	return con
}

// run starts the controller and feeds it lines from in until EOF, /quit or
// ctx is done
func (c *console) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		<-c.ctrl.Done()
	}()

	go c.ctrl.Run(ctx)
	c.ctrl.MicrophoneGranted()

	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			return err
		case line := <-lines:
			if quit := c.handleLine(line); quit {
				return nil
			}
		}
	}
}

func (c *console) handleLine(line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/status":
		snap := c.ctrl.Snapshot()
		c.printf("state=%s wakes=%d stream=%t status=%q\n", snap.State, snap.WakeCount, snap.StreamActive, snap.Status)
		return false
	case "/clear":
		if err := c.ctrl.ClearLog(); err != nil {
			c.printf("failed to clear log: %v\n", err)
		}
		return false
	case "/hide":
		c.ctrl.SetVisibility(true)
		return false
	case "/show":
		c.ctrl.SetVisibility(false)
		return false
	}

	if !c.relay.Publish(0, line, true) {
		c.printf("(not listening right now, %q was dropped)\n", line)
	}
	return false
}

func (c *console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) recognition(cmd stt.RecognitionCommand) {
	if cmd.Action == stt.ActionStart {
		c.printf("(mic open, %s)\n", cmd.Language)
	}
}

func (c *console) StatusChanged(state entities.AssistantState, message string) {
	c.printf("[%s] %s\n", state, message)
}

func (c *console) LogAppended(entry entities.LogEntry) {
	c.printf("%s %-9s %s\n", entry.Timestamp.Format("15:04:05"), entry.Sender+":", entry.Text)
}

func (c *console) LogCleared() {
	c.printf("(log cleared)\n")
}

func (c *console) SoundRequested(sound entities.SoundEffect, volume float64) {
	c.printf("*%s tone at %.0f%%*\n", sound, volume*100)
}

// Speak prints the utterance, playback is instant on a terminal
func (c *console) Speak(ctx context.Context, utterance entities.Utterance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.printf(">> %s\n", utterance.Text)
	return nil
}
