package orchestrator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/taskstream-backend/internal/domain/task"
)

const (
	prefixCurrently = "currently"
	prefixFinished  = "finished"

	verbReasoning  = "reasoning about"
	verbPerforming = "performing"
)

// StepUpdate is the result of applying one progress chunk.
type StepUpdate struct {
	// Key is stable for the lifetime of the step, even when its identity is upgraded from a
	// step number to an id.
	Key     string
	Step    task.ExecutionStep
	Changed bool
}

type stepEntry struct {
	key       string
	id        string
	number    int
	firstSeen time.Time
	chunks    []task.StreamChunk
	seen      map[string]struct{}
	step      task.ExecutionStep
}

// StepReconciler merges progress chunks into one step per identity. The merged step is a
// pure function of the set of distinct chunks seen for the identity, so replays and
// reordering converge on the same collection.
type StepReconciler struct {
	entries []*stepEntry
	seq     int
	now     func() time.Time
}

func NewStepReconciler(now func() time.Time) *StepReconciler {
	if now == nil {
		now = time.Now
	}
	return &StepReconciler{now: now}
}

func (r *StepReconciler) Apply(c task.StreamChunk) StepUpdate {
	id := strings.TrimSpace(c.StepID)
	e := r.find(id, c.Step)
	if e == nil {
		e = r.newEntry(id, c.Step, r.now().UTC())
	} else if e.id == "" && id != "" {
		e.id = id
	}

	fp := fingerprint(c)
	if _, dup := e.seen[fp]; dup {
		return StepUpdate{Key: e.key, Step: e.step.Clone()}
	}
	e.seen[fp] = struct{}{}
	e.chunks = append(e.chunks, c)

	prev := e.step
	e.step = mergeChunks(e)
	e.number = e.step.StepNumber
	if id != "" {
		r.splitAmbiguous(e.number)
	}
	r.sort()

	return StepUpdate{Key: e.key, Step: e.step.Clone(), Changed: !sameStep(prev, e.step)}
}

func (r *StepReconciler) newEntry(id string, number int, firstSeen time.Time) *stepEntry {
	r.seq++
	e := &stepEntry{
		key:       fmt.Sprintf("step-%d", r.seq),
		id:        id,
		number:    number,
		firstSeen: firstSeen,
		seen:      make(map[string]struct{}),
	}
	r.entries = append(r.entries, e)
	return e
}

// find resolves a chunk's identity. Chunks without an id attach to the only id-keyed step
// with their number; when two ids share the number they stay under the bare number.
func (r *StepReconciler) find(id string, number int) *stepEntry {
	if id != "" {
		for _, e := range r.entries {
			if e.id == id {
				return e
			}
		}
		// A step first seen without an id takes the id when it shows up.
		if r.identified(number) == 0 {
			for _, e := range r.entries {
				if e.id == "" && e.number == number {
					return e
				}
			}
		}
		return nil
	}
	for _, e := range r.entries {
		if e.id == "" && e.number == number {
			return e
		}
	}
	var match *stepEntry
	n := 0
	for _, e := range r.entries {
		if e.number == number {
			match = e
			n++
		}
	}
	if n == 1 {
		return match
	}
	return nil
}

func (r *StepReconciler) identified(number int) int {
	n := 0
	for _, e := range r.entries {
		if e.id != "" && e.number == number {
			n++
		}
	}
	return n
}

// splitAmbiguous moves id-less chunks out of id-keyed steps once a second id claims the same
// step number, so the outcome does not depend on which id arrived first.
func (r *StepReconciler) splitAmbiguous(number int) {
	if r.identified(number) < 2 {
		return
	}
	var (
		loose     []task.StreamChunk
		firstSeen time.Time
	)
	for _, e := range r.entries {
		if e.id == "" || e.number != number {
			continue
		}
		kept := e.chunks[:0:0]
		for _, c := range e.chunks {
			if strings.TrimSpace(c.StepID) == "" {
				loose = append(loose, c)
				if firstSeen.IsZero() || e.firstSeen.Before(firstSeen) {
					firstSeen = e.firstSeen
				}
				continue
			}
			kept = append(kept, c)
		}
		if len(kept) != len(e.chunks) {
			e.chunks = kept
			e.rebuild()
		}
	}
	if len(loose) == 0 {
		return
	}

	var bare *stepEntry
	for _, e := range r.entries {
		if e.id == "" && e.number == number {
			bare = e
			break
		}
	}
	if bare == nil {
		bare = r.newEntry("", number, firstSeen)
	}
	bare.chunks = append(bare.chunks, loose...)
	bare.rebuild()
}

func (e *stepEntry) rebuild() {
	e.seen = make(map[string]struct{}, len(e.chunks))
	for _, c := range e.chunks {
		e.seen[fingerprint(c)] = struct{}{}
	}
	e.step = mergeChunks(e)
	e.number = e.step.StepNumber
}

func (r *StepReconciler) sort() {
	sort.SliceStable(r.entries, func(i, j int) bool {
		a, b := r.entries[i].step, r.entries[j].step
		if a.StepNumber != b.StepNumber {
			return a.StepNumber < b.StepNumber
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		// Id-keyed steps before bare ones, then by id.
		if (a.ID == "") != (b.ID == "") {
			return a.ID != ""
		}
		return a.ID < b.ID
	})
}

// Steps returns the reconciled steps ordered by (step number, timestamp).
func (r *StepReconciler) Steps() []task.ExecutionStep {
	out := make([]task.ExecutionStep, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.step.Clone())
	}
	return out
}

func (r *StepReconciler) Len() int { return len(r.entries) }

func mergeChunks(e *stepEntry) task.ExecutionStep {
	chunks := append([]task.StreamChunk(nil), e.chunks...)
	sort.SliceStable(chunks, func(i, j int) bool { return chunkLess(chunks[i], chunks[j]) })

	var (
		s           task.ExecutionStep
		earliest    *time.Time
		sawRunning  bool
		sawThinking bool
	)
	s.ID = e.id
	for _, c := range chunks {
		status := effectiveStatus(c)
		switch status {
		case task.StatusRunning:
			sawRunning = true
		case task.StatusThinking:
			sawThinking = true
		}
		s.Status = status
		if c.Step > 0 {
			s.StepNumber = c.Step
		}
		if c.TotalSteps > 0 {
			s.TotalSteps = c.TotalSteps
		}
		if strings.TrimSpace(c.Content) != "" {
			s.Content = strings.TrimSpace(c.Content)
		}
		if c.Category != "" {
			s.Category = c.Category
		}
		if c.ResourceType != "" {
			s.ResourceType = c.ResourceType
		}
		if len(c.Results) > 0 {
			s.Results = c.Results
		}
		if len(c.ExecutionDetails) > 0 {
			s.ExecutionDetails = c.ExecutionDetails
		}
		if len(c.URLs) > 0 {
			s.URLs = c.URLs
		}
		if len(c.Files) > 0 {
			s.Files = c.Files
		}
		if c.Timestamp != nil && (earliest == nil || c.Timestamp.Before(*earliest)) {
			t := *c.Timestamp
			earliest = &t
		}
	}

	if earliest != nil {
		s.Timestamp = earliest.UTC()
	} else {
		s.Timestamp = e.firstSeen
	}
	s.IsCompleted = s.Status == task.StatusCompleted

	verb := verbPerforming
	if sawThinking && !sawRunning {
		verb = verbReasoning
	}
	label := s.Content
	if label == "" {
		label = fmt.Sprintf("step %d", s.StepNumber)
	}
	s.DisplayText = DisplayText(s.Status, verb, label)
	return s.Clone()
}

// chunkLess is a total order over chunks of one step: lower status rank first, then older
// timestamp, then content, then the encoded form.
func chunkLess(a, b task.StreamChunk) bool {
	ra, rb := effectiveStatus(a).Rank(), effectiveStatus(b).Rank()
	if ra != rb {
		return ra < rb
	}
	switch {
	case a.Timestamp == nil && b.Timestamp != nil:
		return true
	case a.Timestamp != nil && b.Timestamp == nil:
		return false
	case a.Timestamp != nil && b.Timestamp != nil && !a.Timestamp.Equal(*b.Timestamp):
		return a.Timestamp.Before(*b.Timestamp)
	}
	if a.Content != b.Content {
		return a.Content < b.Content
	}
	return fingerprint(a) < fingerprint(b)
}

func effectiveStatus(c task.StreamChunk) task.StepStatus {
	if c.Status.Valid() {
		return c.Status
	}
	return task.StatusRunning
}

func fingerprint(c task.StreamChunk) string {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("%+v", c)
	}
	return string(b)
}

func sameStep(a, b task.ExecutionStep) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}

// DisplayText renders the progress line for a step.
func DisplayText(status task.StepStatus, verb string, content string) string {
	content = strings.TrimSpace(content)
	if verb == "" {
		verb = verbPerforming
	}
	line := content
	if !hasPrefixFold(content, prefixCurrently) && !hasPrefixFold(content, prefixFinished) {
		if status == task.StatusThinking {
			verb = verbReasoning
		}
		line = prefixCurrently + " " + verb + ": " + content
	}
	if status == task.StatusCompleted {
		return FinishedLine(line)
	}
	return line
}

// FinishedLine rewrites a leading "currently" to "finished".
func FinishedLine(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	if !hasPrefixFold(trimmed, prefixCurrently) {
		return line
	}
	return prefixFinished + trimmed[len(prefixCurrently):]
}

func isCurrentlyLine(line string) bool {
	return hasPrefixFold(strings.TrimLeft(line, " "), prefixCurrently)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
