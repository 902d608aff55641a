package notifications

import (
	"context"
	"fmt"
	"slices"
)

const remarkPreviewLimit = 100

// ActivityRef is the slice of an activity the event helpers need.
type ActivityRef struct {
	ID          uint
	Name        string
	Status      string
	CreatedBy   uint
	AssigneeIDs []uint
}

// TeamRef is the slice of a team the event helpers need.
type TeamRef struct {
	ID   uint
	Name string
}

// Actor is the user whose action originated the event. Actors are never notified of their own actions.
type Actor struct {
	ID   uint
	Name string
}

// NotifyActivityCreated tells every assignee other than the creator about a new activity.
func (d *Dispatcher) NotifyActivityCreated(ctx context.Context, activity ActivityRef, actor Actor) []Notification {
	return d.CreateBulk(ctx, recipients(activity.AssigneeIDs, actor.ID), Template{
		Title:             "New Activity Assigned",
		Message:           "You have been assigned to activity: " + activity.Name,
		Type:              TypeActivityAssigned,
		RelatedActivityID: Ref(activity.ID),
	})
}

// NotifyActivityUpdated tells the assignees that the activity changed.
func (d *Dispatcher) NotifyActivityUpdated(ctx context.Context, activity ActivityRef, actor Actor, details string) []Notification {
	return d.CreateBulk(ctx, recipients(activity.AssigneeIDs, actor.ID), Template{
		Title:             "Activity Updated",
		Message:           fmt.Sprintf("Activity '%s' has been updated. %s", activity.Name, details),
		Type:              TypeActivityUpdated,
		RelatedActivityID: Ref(activity.ID),
	})
}

// NotifyActivityStatusChanged tells the assignees about the activity's new status.
func (d *Dispatcher) NotifyActivityStatusChanged(ctx context.Context, activity ActivityRef, actor Actor) []Notification {
	return d.CreateBulk(ctx, recipients(activity.AssigneeIDs, actor.ID), Template{
		Title:             "Activity Status Changed",
		Message:           fmt.Sprintf("Activity '%s' status changed to: %s", activity.Name, activity.Status),
		Type:              TypeActivityStatusChanged,
		RelatedActivityID: Ref(activity.ID),
	})
}

// NotifyTeamMemberAdded tells the member they joined the team.
func (d *Dispatcher) NotifyTeamMemberAdded(ctx context.Context, team TeamRef, memberID uint, actor Actor) []Notification {
	return d.CreateBulk(ctx, recipients([]uint{memberID}, actor.ID), Template{
		Title:         "Added to Team",
		Message:       "You have been added to team: " + team.Name,
		Type:          TypeTeamMemberAdded,
		RelatedTeamID: Ref(team.ID),
	})
}

// NotifyTeamMemberRemoved tells the member they left the team.
func (d *Dispatcher) NotifyTeamMemberRemoved(ctx context.Context, team TeamRef, memberID uint, actor Actor) []Notification {
	return d.CreateBulk(ctx, recipients([]uint{memberID}, actor.ID), Template{
		Title:         "Removed from Team",
		Message:       "You have been removed from team: " + team.Name,
		Type:          TypeTeamMemberRemoved,
		RelatedTeamID: Ref(team.ID),
	})
}

// NotifyRemarkAdded tells the assignees and the activity creator about a new remark.
func (d *Dispatcher) NotifyRemarkAdded(ctx context.Context, activity ActivityRef, author Actor, text string) []Notification {
	return d.notifyRemark(ctx, activity, author, remarkNotice{
		title:  "New Remark Added",
		verb:   "added a remark to",
		kind:   TypeActivityRemarkAdded,
		remark: text,
		author: author.Name,
	})
}

// NotifyRemarkUpdated tells the assignees and the activity creator about an edited remark.
func (d *Dispatcher) NotifyRemarkUpdated(ctx context.Context, activity ActivityRef, author Actor, text string) []Notification {
	return d.notifyRemark(ctx, activity, author, remarkNotice{
		title:  "Remark Updated",
		verb:   "updated a remark on",
		kind:   TypeActivityRemarkUpdated,
		remark: text,
		author: author.Name,
	})
}

type remarkNotice struct {
	title  string
	verb   string
	kind   string
	remark string
	author string
}

func (n remarkNotice) template(activity ActivityRef, possessive string) Template {
	return Template{
		Title:             n.title,
		Message:           fmt.Sprintf("%s %s %sactivity '%s': %s", n.author, n.verb, possessive, activity.Name, truncateRemark(n.remark)),
		Type:              n.kind,
		RelatedActivityID: Ref(activity.ID),
	}
}

func (d *Dispatcher) notifyRemark(ctx context.Context, activity ActivityRef, author Actor, notice remarkNotice) []Notification {
	assignees := recipients(activity.AssigneeIDs, author.ID)
	created := d.CreateBulk(ctx, assignees, notice.template(activity, ""))

	if activity.CreatedBy == 0 || activity.CreatedBy == author.ID || slices.Contains(activity.AssigneeIDs, activity.CreatedBy) {
		return created
	}
	return append(created, d.CreateBulk(ctx, []uint{activity.CreatedBy}, notice.template(activity, "your "))...)
}

// recipients drops the actor, zero ids and duplicates while keeping input order.
func recipients(userIDs []uint, actorID uint) []uint {
	out := make([]uint, 0, len(userIDs))
	seen := make(map[uint]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id == 0 || id == actorID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func truncateRemark(text string) string {
	runes := []rune(text)
	if len(runes) <= remarkPreviewLimit {
		return text
	}
	return string(runes[:remarkPreviewLimit]) + "..."
}
