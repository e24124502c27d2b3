package types

import "strconv"

// Attribute name constants for the persisted scalar columns of an issue.
// These are the keys accepted in attribute maps and the prop_key values of
// attribute journal details.
const (
	AttrProjectID      = "project_id"
	AttrTrackerID      = "tracker_id"
	AttrStatusID       = "status_id"
	AttrPriorityID     = "priority_id"
	AttrCategoryID     = "category_id"
	AttrAssignedToID   = "assigned_to_id"
	AttrFixedVersionID = "fixed_version_id"
	AttrParentID       = "parent_id"
	AttrSubject        = "subject"
	AttrDescription    = "description"
	AttrStartDate      = "start_date"
	AttrDueDate        = "due_date"
	AttrDoneRatio      = "done_ratio"
	AttrEstimatedHours = "estimated_hours"
)

// JournaledAttributes lists every column that is diffed into journal
// details. The identifier, nested-set bounds, lock counter and timestamps
// are deliberately absent.
var JournaledAttributes = []string{
	AttrProjectID,
	AttrTrackerID,
	AttrStatusID,
	AttrPriorityID,
	AttrCategoryID,
	AttrAssignedToID,
	AttrFixedVersionID,
	AttrParentID,
	AttrSubject,
	AttrDescription,
	AttrStartDate,
	AttrDueDate,
	AttrDoneRatio,
	AttrEstimatedHours,
}

// AttributeStrings projects the issue's journaled columns to their string
// form: ids in decimal, nil references and missing dates as the empty
// string. The same projection feeds the journal diff on both sides, so a
// value compares as changed exactly when its rendered form changed.
func (i *Issue) AttributeStrings() map[string]string {
	return map[string]string{
		AttrProjectID:      strconv.FormatInt(i.ProjectID, 10),
		AttrTrackerID:      strconv.FormatInt(i.TrackerID, 10),
		AttrStatusID:       strconv.FormatInt(i.StatusID, 10),
		AttrPriorityID:     strconv.FormatInt(i.PriorityID, 10),
		AttrCategoryID:     idString(i.CategoryID),
		AttrAssignedToID:   idString(i.AssignedToID),
		AttrFixedVersionID: idString(i.FixedVersionID),
		AttrParentID:       idString(i.ParentID),
		AttrSubject:        i.Subject,
		AttrDescription:    i.Description,
		AttrStartDate:      dateString(i.StartDate),
		AttrDueDate:        dateString(i.DueDate),
		AttrDoneRatio:      strconv.Itoa(i.DoneRatio),
		AttrEstimatedHours: hoursString(i.EstimatedHours),
	}
}

func idString(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

func dateString(d *Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func hoursString(h *float64) string {
	if h == nil {
		return ""
	}
	return strconv.FormatFloat(*h, 'f', -1, 64)
}
