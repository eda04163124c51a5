package retention

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Tag records why a retained artifact is kept.
type Tag string

const (
	TagNone     Tag = ""
	TagDaily    Tag = "daily"
	TagWeekly   Tag = "weekly"
	TagMonthly  Tag = "monthly"
	TagYearly   Tag = "yearly"
	TagBaseline Tag = "baseline"
)

// Action is what a pass does to an artifact
type Action string

const (
	ActionKeep   Action = "KEEP"
	ActionRename Action = "RENAME"
	ActionDelete Action = "DELETE"
)

// periodKeys maps each anchor tag to the function bucketing a time into it's period.
var periodKeys = map[Tag]func(time.Time) string{
	TagDaily: func(t time.Time) string {
		return t.Format("2006-01-02")
	},
	TagWeekly: func(t time.Time) string {
		y, w := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	},
	TagMonthly: func(t time.Time) string {
		return t.Format("2006-01")
	},
	TagYearly: func(t time.Time) string {
		return t.Format("2006")
	},
}

// ToTag returns the Tag for the given string, if it is one.
func ToTag(s string) (Tag, bool) {
	t := Tag(strings.ToLower(s))
	switch t {
	case TagDaily, TagWeekly, TagMonthly, TagYearly, TagBaseline:
		return t, true
	}
	return TagNone, false
}

// Artifact is one timestamped item of a single subject (ie. all backups of one file).
type Artifact struct {
	// Name identifies the artifact without any tag. Used to order artifacts with
	// identical timestamps.
	Name string

	// Time the artifact was taken
	Time time.Time

	// Tag currently stored against the artifact
	Tag Tag
}

// Decision is what a pass will do with one artifact
type Decision struct {
	Artifact Artifact
	Action   Action

	// Tag the artifact carries after the pass
	Tag Tag
}

// Policy configures a retention pass
type Policy struct {
	// KeepRecent is how many of the newest artifacts are kept as-is. Zero is valid.
	KeepRecent int

	// Granularities are the anchor tags to apply, finest first.
	// Defaults to daily, weekly, monthly, yearly.
	Granularities []Tag
}

func (p *Policy) SetDefaults() {
	if p.KeepRecent < 0 {
		p.KeepRecent = 0
	}
	if len(p.Granularities) == 0 {
		p.Granularities = []Tag{TagDaily, TagWeekly, TagMonthly, TagYearly}
	}
}

// Plan decides what to keep, rename and delete. It's a pure function of the artifact
// timestamps; the result is ordered oldest first.
//
// Anchor tags are applied finest to coarsest, so an artifact that anchors several
// periods ends up with the coarsest tag. The newest KeepRecent artifacts keep whatever
// tag they have & are never renamed. The oldest artifact is always kept as the baseline.
func Plan(policy *Policy, in []Artifact) []*Decision {
	if len(in) == 0 {
		return nil
	}
	if policy == nil {
		policy = &Policy{}
	}
	policy.SetDefaults()

	items := make([]Artifact, len(in))
	copy(items, in)
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Time.Equal(items[j].Time) {
			return items[i].Time.Before(items[j].Time)
		}
		return items[i].Name < items[j].Name
	})

	recent := map[int]bool{}
	for i := len(items) - 1; i >= 0 && len(items)-i <= policy.KeepRecent; i-- {
		recent[i] = true
	}

	anchors := map[int]Tag{}
	for _, tag := range policy.Granularities {
		key, ok := periodKeys[tag]
		if !ok {
			continue
		}
		seen := map[string]bool{}
		for i, a := range items {
			k := key(a.Time)
			if seen[k] {
				continue
			}
			seen[k] = true
			anchors[i] = tag
		}
	}

	decisions := make([]*Decision, len(items))
	for i, a := range items {
		d := &Decision{Artifact: a, Action: ActionKeep, Tag: a.Tag}
		decisions[i] = d

		tag, anchored := anchors[i]
		switch {
		case i == 0:
			d.Tag = TagBaseline
		case recent[i]:
			continue
		case anchored:
			d.Tag = tag
		default:
			d.Action = ActionDelete
			continue
		}
		if d.Tag != a.Tag {
			d.Action = ActionRename
		}
	}

	return decisions
}
