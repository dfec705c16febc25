package orchestrator

import (
	"strings"
	"time"

	"github.com/yungbote/taskstream-backend/internal/domain/task"
)

const (
	Placeholder           = "Working on it..."
	LineReportGenerated   = "report generated"
	LineConnectionsClosed = "connections stopped"
	NoticeTransportFailed = "The connection to the task service failed before any progress was received. Please try again."
)

type lineMarker struct {
	runningIdx int
	loggedRun  bool
	loggedDone bool
}

// ConversationBuilder folds chunks into one TaskMessage. Every mutator reports whether the
// message changed; none of them touch a frozen message.
type ConversationBuilder struct {
	msg     task.TaskMessage
	started bool
	frozen  bool
	markers map[string]*lineMarker
}

func NewConversationBuilder(msg task.TaskMessage) *ConversationBuilder {
	msg.IsStreaming = true
	return &ConversationBuilder{msg: msg, markers: make(map[string]*lineMarker)}
}

func (b *ConversationBuilder) Started() bool { return b.started }

func (b *ConversationBuilder) Message() task.TaskMessage { return b.msg.Clone() }

func (b *ConversationBuilder) Start(title string) bool {
	if b.frozen || b.started {
		return false
	}
	b.started = true
	title = strings.TrimSpace(title)
	if title != "" {
		b.msg.Title = title
	}
	b.msg.Content = Placeholder
	b.msg.ProgressLines = append(b.msg.ProgressLines, prefixCurrently+" "+verbReasoning+": "+b.msg.Title)
	return true
}

// Progress logs one running line and one finished line per step key.
func (b *ConversationBuilder) Progress(key string, step task.ExecutionStep) bool {
	if b.frozen {
		return false
	}
	m, ok := b.markers[key]
	if !ok {
		m = &lineMarker{runningIdx: -1}
		b.markers[key] = m
	}
	if m.loggedDone {
		return false
	}

	if step.Status == task.StatusCompleted {
		line := FinishedLine(step.DisplayText)
		if m.runningIdx >= 0 {
			b.msg.ProgressLines[m.runningIdx] = line
		} else {
			b.msg.ProgressLines = append(b.msg.ProgressLines, line)
		}
		m.loggedDone = true
		return true
	}

	if !m.loggedRun {
		b.msg.ProgressLines = append(b.msg.ProgressLines, step.DisplayText)
		m.runningIdx = len(b.msg.ProgressLines) - 1
		m.loggedRun = true
		return true
	}
	if b.msg.ProgressLines[m.runningIdx] != step.DisplayText {
		b.msg.ProgressLines[m.runningIdx] = step.DisplayText
		return true
	}
	return false
}

func (b *ConversationBuilder) Content(text string) bool {
	if b.frozen || text == "" {
		return false
	}
	if b.msg.Content == Placeholder || b.msg.Content == "" {
		b.msg.Content = text
	} else {
		b.msg.Content += text
	}
	return true
}

func (b *ConversationBuilder) Complete(now time.Time) bool {
	if b.frozen {
		return false
	}
	for i, line := range b.msg.ProgressLines {
		if isCurrentlyLine(line) {
			b.msg.ProgressLines[i] = FinishedLine(line)
		}
	}
	b.msg.ProgressLines = append(b.msg.ProgressLines, LineReportGenerated)
	b.finish(now)
	return true
}

// Fail surfaces an upstream or transport error and marks the message complete-with-error.
func (b *ConversationBuilder) Fail(errText string, now time.Time) bool {
	if b.frozen {
		return false
	}
	errText = strings.TrimSpace(errText)
	if errText == "" {
		errText = "task failed"
	}
	notice := "Error: " + errText
	if b.msg.Content == "" || b.msg.Content == Placeholder {
		b.msg.Content = notice
	} else {
		b.msg.Content += "\n\n" + notice
	}
	b.msg.Error = errText
	b.finish(now)
	return true
}

// Interrupt ends a stream that stopped after producing data. No error text is added.
func (b *ConversationBuilder) Interrupt(now time.Time) bool {
	if b.frozen {
		return false
	}
	if b.msg.Content == Placeholder {
		b.msg.Content = ""
	}
	b.finish(now)
	return true
}

func (b *ConversationBuilder) Cancel(now time.Time) bool {
	if b.frozen {
		return false
	}
	if b.msg.Content == Placeholder {
		b.msg.Content = ""
	}
	b.msg.ProgressLines = append(b.msg.ProgressLines, LineConnectionsClosed)
	b.msg.Cancelled = true
	b.finish(now)
	return true
}

// NonTrivial reports whether the final content is worth a report or suggestions.
func (b *ConversationBuilder) NonTrivial(minLen int) bool {
	content := strings.TrimSpace(b.msg.Content)
	if content == "" || content == Placeholder || b.msg.Error != "" {
		return false
	}
	return len(content) > minLen
}

func (b *ConversationBuilder) finish(now time.Time) {
	b.msg.IsStreaming = false
	b.msg.IsComplete = true
	t := now.UTC()
	b.msg.CompletedAt = &t
	b.frozen = true
}
