package world

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownJob = errors.New("unknown job")

// AddJob names the job if needed and appends it to the live set. The
// job's storage must exist.
func (w *World) AddJob(j *Job) error {
	if _, ok := w.Storage(j.Storage); !ok {
		return fmt.Errorf("job storage %q: %w", j.Storage, ErrUnknownStorage)
	}
	if j.Name == "" {
		j.Name = fmt.Sprintf("%s%d", jobPrefix(j.Kind), w.nextJob)
		w.nextJob++
	}
	if _, ok := w.jobIdx[j.Name]; ok {
		return fmt.Errorf("job %q: %w", j.Name, ErrDuplicate)
	}
	if j.delivered == nil {
		j.delivered = map[string]Inventory{}
	}
	w.jobs = append(w.jobs, j)
	w.jobIdx[j.Name] = j
	return nil
}

func jobPrefix(k JobKind) string {
	switch k {
	case JobAuction:
		return "auction"
	case JobMission:
		return "mission"
	default:
		return "job"
	}
}

func (w *World) Jobs() []*Job { return w.jobs }

func (w *World) Job(name string) (*Job, bool) {
	j, ok := w.jobIdx[name]
	return j, ok
}

// ActiveMissions reports whether any mission is still running.
func (w *World) ActiveMissions() bool {
	for _, j := range w.jobs {
		if j.Kind == JobMission && !j.IsFinished() {
			return true
		}
	}
	return false
}

func (w *World) ActivateJobs(step int) []*Job {
	var out []*Job
	for _, j := range w.jobs {
		if j.Begin == step && j.Status == JobInactive {
			j.Activate()
			out = append(out, j)
		}
	}
	return out
}

// TerminateJobs ends every job whose deadline is step, charging fines,
// refunding posters and crediting partial deliveries to the storage.
func (w *World) TerminateJobs(step int) []*Job {
	var out []*Job
	for _, j := range w.jobs {
		if j.End != step || !j.Terminate() {
			continue
		}
		for _, t := range w.teams {
			if fine := j.FineFor(t.Name); fine != 0 {
				t.Money -= int64(fine)
			}
		}
		if j.Kind == JobPosted && j.Status == JobTerminated {
			if t, ok := w.teamIdx[j.Poster]; ok {
				t.Money += int64(j.Reward)
			}
		}
		w.returnProgress(j)
		out = append(out, j)
	}
	return out
}

func (w *World) AssignAuctions(step int) []*Job {
	var out []*Job
	for _, j := range w.jobs {
		if j.Kind == JobAuction && j.AssignStep() == step && j.Status == JobAuctioning {
			j.Assign()
			out = append(out, j)
		}
	}
	return out
}

type Delivery struct {
	Moved     Inventory
	Completed bool
}

// DeliverJob hands the entity's matching items to a job and pays the
// reward when that completes it.
func (w *World) DeliverJob(e *Entity, jobName string, step int) (Delivery, error) {
	j, ok := w.jobIdx[jobName]
	if !ok {
		return Delivery{}, fmt.Errorf("%q: %w", jobName, ErrUnknownJob)
	}
	moved, done, err := j.Deliver(e.Team, e.Inventory, step)
	if err != nil {
		return Delivery{}, err
	}
	if done {
		if t, ok := w.teamIdx[e.Team]; ok {
			t.Money += int64(j.Reward)
		}
		w.returnProgress(j)
	}
	return Delivery{Moved: moved, Completed: done}, nil
}

func (w *World) returnProgress(j *Job) {
	s, ok := w.Storage(j.Storage)
	if !ok {
		return
	}
	progress := j.TakeProgress()
	for _, team := range sortedKeys(progress) {
		for _, ic := range progress[team].Sorted() {
			s.AddDelivered(ic.Item, ic.Count, team)
		}
	}
}

func sortedKeys(m map[string]Inventory) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
