package redmine

import (
	"encoding/json"
	"strings"
)

// NamedRef is the {id, name} pair Redmine uses for trackers, statuses,
// priorities, categories, versions and user references.
type NamedRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Issue is a Redmine issue as returned by the detail endpoint with
// journals, relations, children, attachments and changesets included.
type Issue struct {
	ID             int           `json:"id"`
	Subject        string        `json:"subject"`
	Description    string        `json:"description"`
	Status         NamedRef      `json:"status"`
	Tracker        NamedRef      `json:"tracker"`
	Category       *NamedRef     `json:"category,omitempty"`
	Priority       NamedRef      `json:"priority"`
	Author         *NamedRef     `json:"author,omitempty"`
	AssignedTo     *NamedRef     `json:"assigned_to,omitempty"`
	FixedVersion   *NamedRef     `json:"fixed_version,omitempty"`
	Parent         *IssueRef     `json:"parent,omitempty"`
	CreatedOn      string        `json:"created_on"`
	ClosedOn       string        `json:"closed_on,omitempty"`
	DueDate        string        `json:"due_date,omitempty"`
	EstimatedHours float64       `json:"estimated_hours,omitempty"`
	SpentHours     float64       `json:"spent_hours,omitempty"`
	Journals       []Journal     `json:"journals,omitempty"`
	Relations      []Relation    `json:"relations,omitempty"`
	Children       []ChildIssue  `json:"children,omitempty"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	Changesets     []Changeset   `json:"changesets,omitempty"`
	CustomFields   []CustomField `json:"custom_fields,omitempty"`
	Watchers       []NamedRef    `json:"watchers,omitempty"`
}

// IssueRef is a bare issue reference (parent link).
type IssueRef struct {
	ID int `json:"id"`
}

// ChildIssue is a child reference as included by the detail endpoint.
type ChildIssue struct {
	ID      int    `json:"id"`
	Subject string `json:"subject,omitempty"`
}

// Journal is one timestamped change record on an issue. Notes may be empty
// when the entry carries only field-change details.
type Journal struct {
	ID        int       `json:"id"`
	User      *NamedRef `json:"user,omitempty"`
	Notes     string    `json:"notes"`
	CreatedOn string    `json:"created_on"`
}

// Relation is a formal issue relation. Relations are symmetric: the current
// issue may be stored on either side.
type Relation struct {
	ID           int    `json:"id"`
	IssueID      int    `json:"issue_id"`
	IssueToID    int    `json:"issue_to_id"`
	RelationType string `json:"relation_type"`
}

// Attachment is an uploaded file on an issue. ContentURL requires the API
// key appended as a query parameter to be fetchable.
type Attachment struct {
	ID          int       `json:"id"`
	Filename    string    `json:"filename"`
	Filesize    int64     `json:"filesize"`
	ContentType string    `json:"content_type"`
	Description string    `json:"description"`
	ContentURL  string    `json:"content_url"`
	Author      *NamedRef `json:"author,omitempty"`
	CreatedOn   string    `json:"created_on"`
}

// Changeset is a commit linked to an issue through its message.
type Changeset struct {
	Revision    string    `json:"revision"`
	User        *NamedRef `json:"user,omitempty"`
	Comments    string    `json:"comments"`
	CommittedOn string    `json:"committed_on"`
}

// CustomField is a configured extra field with its value.
type CustomField struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Value CFValue `json:"value"`
}

// CFValue tolerates Redmine's two custom-field value encodings: a plain
// string, or an array of strings for multi-value fields.
type CFValue string

func (v *CFValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = CFValue(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*v = CFValue(strings.Join(list, ", "))
	return nil
}

func (v CFValue) String() string { return string(v) }

// User is a Redmine account fetched from the users endpoint.
type User struct {
	ID        int    `json:"id"`
	Login     string `json:"login"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Mail      string `json:"mail"`
}

// Version is a Redmine version (milestone equivalent).
type Version struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
	DueDate     string `json:"due_date,omitempty"`
	CreatedOn   string `json:"created_on"`
}
