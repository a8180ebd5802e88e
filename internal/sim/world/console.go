package world

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

var ErrUnknownCommand = errors.New("world: unknown command")

// Console runs host console commands: say, give and eco give. Every command
// it accepts is appended to the world's command log.
type Console struct{ W *World }

func (c Console) Run(ctx context.Context, command string) error {
	var err error
	if cerr := c.W.Call(ctx, func() { err = c.W.runCommand(command) }); cerr != nil {
		return cerr
	}
	return err
}

// CommandLog returns every command accepted so far, oldest first.
func (c Console) CommandLog(ctx context.Context) ([]string, error) {
	var out []string
	err := c.W.Call(ctx, func() { out = append(out, c.W.commands...) })
	return out, err
}

func (w *World) runCommand(command string) error {
	command = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(command), "/"))
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty", ErrUnknownCommand)
	}
	var err error
	switch strings.ToLower(fields[0]) {
	case "say":
		w.log.Info("broadcast", zap.String("text", strings.TrimSpace(command[len(fields[0]):])))
	case "give":
		err = w.give(fields[1:])
	case "eco":
		if len(fields) < 2 || strings.ToLower(fields[1]) != "give" {
			return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
		}
		err = w.pay(fields[2:])
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
	if err != nil {
		return err
	}
	w.commands = append(w.commands, command)
	return nil
}

// give <player> <item> [count]
func (w *World) give(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("give: usage give <player> <item> [count]")
	}
	p, ok := w.player(args[0])
	if !ok {
		return fmt.Errorf("give: unknown player %q", args[0])
	}
	item := strings.ToUpper(args[1])
	if !w.cats.Items.Has(item) {
		return fmt.Errorf("give: unknown item %q", args[1])
	}
	n := 1
	if len(args) == 3 {
		v, err := strconv.Atoi(args[2])
		if err != nil || v <= 0 {
			return fmt.Errorf("give: bad count %q", args[2])
		}
		n = v
	}
	if p.Items == nil {
		p.Items = map[string]int{}
	}
	p.Items[item] += n
	return nil
}

// eco give <player> <amount>
func (w *World) pay(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("eco give: usage eco give <player> <amount>")
	}
	p, ok := w.player(args[0])
	if !ok {
		return fmt.Errorf("eco give: unknown player %q", args[0])
	}
	v, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("eco give: bad amount %q", args[1])
	}
	p.Balance += v
	return nil
}
