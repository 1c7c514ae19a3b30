package world

import (
	"errors"
	"fmt"
	"sort"

	"cityrun.ai/internal/sim/catalog"
)

type JobKind string

const (
	JobRegular JobKind = "job"
	JobAuction JobKind = "auction"
	JobMission JobKind = "mission"
	JobPosted  JobKind = "posted"
)

type JobStatus string

const (
	JobInactive   JobStatus = "INACTIVE"
	JobActive     JobStatus = "ACTIVE"
	JobAuctioning JobStatus = "AUCTION"
	JobAssigned   JobStatus = "ASSIGNED"
	JobCompleted  JobStatus = "COMPLETED"
	JobTerminated JobStatus = "TERMINATED"
	JobUnassigned JobStatus = "UNASSIGNED"
)

// PosterSystem marks jobs created by the generator or an operator.
const PosterSystem = "system"

var (
	ErrJobStatus = errors.New("job is not in a state that allows this")
	ErrBid       = errors.New("invalid bid")
)

type Bid struct {
	Team   string
	Amount int
}

type AuctionTerms struct {
	AuctionTime  int
	Fine         int
	MaxRewardAdd int

	Lowest *Bid
	Winner string
}

type MissionTerms struct {
	ID   string
	Team string
	Fine int
}

// Job is a delivery contract. Auction and Mission are set for the
// respective kinds only.
type Job struct {
	Name    string
	Kind    JobKind
	Status  JobStatus
	Poster  string
	Storage string
	Reward  int
	Begin   int
	End     int

	Required []catalog.ItemCount

	Auction *AuctionTerms
	Mission *MissionTerms

	CompletedBy   string
	CompletedStep int

	delivered map[string]Inventory
}

func NewJob(kind JobKind, reward int, storage string, begin, end int, poster string, required map[string]int) *Job {
	return &Job{
		Kind:      kind,
		Status:    JobInactive,
		Poster:    poster,
		Storage:   storage,
		Reward:    reward,
		Begin:     begin,
		End:       end,
		Required:  catalog.SortedCounts(required),
		delivered: map[string]Inventory{},
	}
}

func NewAuctionJob(reward int, storage string, begin, end, auctionTime, fine, maxRewardAdd int, required map[string]int) *Job {
	j := NewJob(JobAuction, reward, storage, begin, end, PosterSystem, required)
	j.Auction = &AuctionTerms{AuctionTime: auctionTime, Fine: fine, MaxRewardAdd: maxRewardAdd}
	return j
}

func NewMission(reward int, storage string, begin, end, fine int, team, missionID string, required map[string]int) *Job {
	j := NewJob(JobMission, reward, storage, begin, end, PosterSystem, required)
	j.Mission = &MissionTerms{ID: missionID, Team: team, Fine: fine}
	return j
}

func (j *Job) RequiredCount(item string) int {
	for _, r := range j.Required {
		if r.Item == item {
			return r.Count
		}
	}
	return 0
}

func (j *Job) DeliveredBy(team string) Inventory { return j.delivered[team] }

// Teams that delivered anything to the job, in name order.
func (j *Job) DeliveringTeams() []string {
	out := make([]string, 0, len(j.delivered))
	for t := range j.delivered {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (j *Job) IsActive() bool { return j.Status == JobActive || j.Status == JobAssigned }

func (j *Job) IsFinished() bool {
	switch j.Status {
	case JobCompleted, JobTerminated, JobUnassigned:
		return true
	}
	return false
}

// AssignStep is the step at which an auction closes.
func (j *Job) AssignStep() int {
	if j.Auction == nil {
		return -1
	}
	return j.Begin + j.Auction.AuctionTime - 1
}

// Activate moves an inactive job into its first live state.
func (j *Job) Activate() {
	if j.Status != JobInactive {
		return
	}
	if j.Kind == JobAuction {
		j.Status = JobAuctioning
		return
	}
	j.Status = JobActive
}

// Bid registers an offer to do an auction job for amount. The lowest bid
// wins; among equal bids the earliest stays.
func (j *Job) Bid(team string, amount int) error {
	if j.Kind != JobAuction || j.Status != JobAuctioning {
		return ErrJobStatus
	}
	if amount <= 0 || amount > j.Reward {
		return fmt.Errorf("%w: %d not in 1..%d", ErrBid, amount, j.Reward)
	}
	if j.Auction.Lowest == nil || amount < j.Auction.Lowest.Amount {
		j.Auction.Lowest = &Bid{Team: team, Amount: amount}
	}
	return nil
}

// Assign closes the auction.
func (j *Job) Assign() {
	if j.Kind != JobAuction || j.Status != JobAuctioning {
		return
	}
	if j.Auction.Lowest == nil {
		j.Status = JobUnassigned
		return
	}
	j.Auction.Winner = j.Auction.Lowest.Team
	j.Reward = j.Auction.Lowest.Amount
	j.Status = JobAssigned
}

// AcceptsFrom reports whether team may deliver to the job right now.
func (j *Job) AcceptsFrom(team string) bool {
	switch j.Kind {
	case JobAuction:
		return j.Status == JobAssigned && j.Auction.Winner == team
	case JobMission:
		return j.Status == JobActive && j.Mission.Team == team
	case JobPosted:
		return j.Status == JobActive && j.Poster != team
	default:
		return j.Status == JobActive
	}
}

// VisibleTo reports whether team sees the job in its percept.
func (j *Job) VisibleTo(team string) bool {
	switch j.Kind {
	case JobAuction:
		return j.Status == JobAuctioning || (j.Status == JobAssigned && j.Auction.Winner == team)
	case JobMission:
		return j.Status == JobActive && j.Mission.Team == team
	case JobPosted:
		return j.Status == JobActive || (j.Poster == team && !j.IsFinished())
	default:
		return j.Status == JobActive
	}
}

// Deliver moves still-missing required items from inv into the team's
// progress. It returns what was moved and whether the job is now complete.
func (j *Job) Deliver(team string, inv Inventory, step int) (Inventory, bool, error) {
	if !j.AcceptsFrom(team) {
		return nil, false, ErrJobStatus
	}
	got := j.delivered[team]
	if got == nil {
		got = Inventory{}
	}
	moved := Inventory{}
	for _, r := range j.Required {
		missing := r.Count - got.Count(r.Item)
		have := inv.Count(r.Item)
		n := min(missing, have)
		if n <= 0 {
			continue
		}
		inv.Remove(r.Item, n)
		got.Add(r.Item, n)
		moved.Add(r.Item, n)
	}
	if !got.Empty() {
		j.delivered[team] = got
	}
	for _, r := range j.Required {
		if got.Count(r.Item) < r.Count {
			return moved, false, nil
		}
	}
	j.Status = JobCompleted
	j.CompletedBy = team
	j.CompletedStep = step
	delete(j.delivered, team)
	return moved, true, nil
}

// Terminate ends a job that reached its deadline.
func (j *Job) Terminate() bool {
	if j.IsFinished() {
		return false
	}
	if j.Status == JobAuctioning || (j.Kind == JobAuction && j.Status == JobInactive) {
		j.Status = JobUnassigned
		return true
	}
	j.Status = JobTerminated
	return true
}

// Fine owed by a team when the job ends unfinished, 0 if none.
func (j *Job) FineFor(team string) int {
	if j.Status != JobTerminated {
		return 0
	}
	switch {
	case j.Auction != nil && j.Auction.Winner == team:
		return j.Auction.Fine
	case j.Mission != nil && j.Mission.Team == team:
		return j.Mission.Fine
	}
	return 0
}

// TakeProgress drains all partial deliveries.
func (j *Job) TakeProgress() map[string]Inventory {
	out := j.delivered
	j.delivered = map[string]Inventory{}
	return out
}
