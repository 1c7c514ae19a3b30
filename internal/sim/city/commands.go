package city

import (
	"errors"
	"fmt"
	"strconv"

	"cityrun.ai/internal/sim/world"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrBadCommand     = errors.New("invalid command parameters")
)

// HandleCommand runs an operator command. Bad input is logged and leaves
// the world untouched.
func (s *Simulation) HandleCommand(args []string) error {
	if len(args) == 0 {
		s.log.Error("empty command")
		return ErrUnknownCommand
	}
	switch args[0] {
	case "give":
		return s.give(args[1:])
	default:
		s.log.Error("unknown command", "command", args[0])
		return fmt.Errorf("%q: %w", args[0], ErrUnknownCommand)
	}
}

// give <item> <agent> <amount>
func (s *Simulation) give(args []string) error {
	if len(args) == 3 {
		item, agent := args[0], args[1]
		amount, err := strconv.Atoi(args[2])
		_, known := s.world.Entity(agent)
		if err == nil && amount > 0 && known && s.world.Catalog().Known(item) {
			if s.world.AddItemTo(agent, item, amount) {
				s.log.Info("operator give", "item", item, "agent", agent, "amount", amount)
				return nil
			}
		}
	}
	s.log.Error("invalid give command parameters", "args", args)
	return fmt.Errorf("give %v: %w", args, ErrBadCommand)
}

// SimStore puts amount of item into a team's stock of a storage. It
// reports false when the storage or item is unknown or the items do not fit.
func (s *Simulation) SimStore(storage, item, team string, amount int) bool {
	st, ok := s.world.Storage(storage)
	if !ok {
		return false
	}
	vol, ok := s.world.Catalog().Volume(item)
	if !ok {
		return false
	}
	return st.Store(item, vol, amount, team)
}

// SimAddJob adds a regular job. Nothing happens when the storage does not
// exist; unknown items in requirements are skipped.
func (s *Simulation) SimAddJob(requirements map[string]int, reward int, storage string, start, end int, poster string) {
	if _, ok := s.world.Storage(storage); !ok {
		return
	}
	req := map[string]int{}
	for name, n := range requirements {
		if s.world.Catalog().Known(name) && n > 0 {
			req[name] = n
		}
	}
	j := world.NewJob(world.JobRegular, reward, storage, start, end, poster, req)
	if err := s.world.AddJob(j); err != nil {
		s.log.Error("add job", "err", err)
		return
	}
	if start <= s.step {
		s.log.Warn("job start already passed, it will never activate", "job", j.Name, "start", start, "step", s.step)
	}
}
