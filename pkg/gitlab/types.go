package gitlab

// User is a GitLab account as listed by the users endpoint.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	State    string `json:"state,omitempty"`
}

// Milestone is a project milestone.
type Milestone struct {
	ID      int    `json:"id"`
	IID     int    `json:"iid"`
	Title   string `json:"title"`
	State   string `json:"state,omitempty"`
	DueDate string `json:"due_date,omitempty"`
}

// MilestonePayload is the creation payload for a milestone.
type MilestonePayload struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

// Issue is the slice of a GitLab issue the migration cares about. IID is
// the per-project identifier GitLab assigns sequentially on creation.
type Issue struct {
	ID    int    `json:"id"`
	IID   int    `json:"iid"`
	Title string `json:"title"`
	State string `json:"state,omitempty"`
}

// IssueFields is the issue creation payload. Labels is a single
// comma-separated tag string: GitLab labels are free text, not the
// structured tracker/category/status/priority fields Redmine has.
type IssueFields struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Labels      string `json:"labels,omitempty"`
	MilestoneID int    `json:"milestone_id,omitempty"`
	AssigneeID  int    `json:"assignee_id,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// Upload is the response of the project uploads endpoint. Markdown is the
// ready-to-embed reference string.
type Upload struct {
	URL      string `json:"url"`
	Markdown string `json:"markdown"`
	Alt      string `json:"alt,omitempty"`
}

// Member is a project member (users granted access to the project).
type Member struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	AccessLevel int    `json:"access_level"`
}
