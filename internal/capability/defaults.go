package capability

import "regexp"

var (
	reEmailAddr = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	reQuoted    = regexp.MustCompile(`["“][^"”]+["”]|'[^']{2,}'`)
	reTitled    = regexp.MustCompile(`(?i)\b(titled|called|named|title:)\s+\S+`)
	reWeekday   = regexp.MustCompile(`(?i)\b(mon|tues|wednes|thurs|fri|satur|sun)day\b|\b(today|tomorrow|tonight)\b|\bnext (week|month)\b`)
	reClock     = regexp.MustCompile(`(?i)\b\d{1,2}(:\d{2})?\s*(am|pm)\b|\b\d{1,2}:\d{2}\b`)
	reDate      = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2}\b`)
	reDuration  = regexp.MustCompile(`(?i)\b\d+\s*(min|mins|minutes?|h|hrs?|hours?)\b|\bhalf an hour\b|\ban hour\b|\ball[- ]day\b`)
	reWith      = regexp.MustCompile(`(?i)\bwith\s+(my\s+|the\s+)?[a-z]\w+`)
	reTo        = regexp.MustCompile(`(?i)\bto\s+(my\s+|the\s+)?[a-z]\w+`)
	reSubject   = regexp.MustCompile(`(?i)\b(subject|about|regarding|re:)\b`)
	reBody      = regexp.MustCompile(`(?i)\b(saying|that says|body|message:|content:|telling)\b`)
	reChannel   = regexp.MustCompile(`#[\w-]+|(?i)\b(channel|dm)\b`)
	reParent    = regexp.MustCompile(`(?i)\b(under|inside|parent)\b|\bin (the|my) \w+ (page|workspace|section)\b`)
	reTemplate  = regexp.MustCompile(`(?i)\btemplate\b`)
	reFolder    = regexp.MustCompile(`(?i)\b(folder|directory)\b|\bin (my )?drive\b`)
	reWorksheet = regexp.MustCompile(`(?i)\b(worksheet|tab)\b|\bsheet\s+\w+`)
	reValues    = regexp.MustCompile(`\d|(?i)\b(values?|rows?|columns?|entries|amounts?)\b`)
)

// Default returns the registry of supported tool actions.
func Default() *Registry {
	r := NewRegistry()
	for _, c := range defaultCapabilities() {
		r.MustRegister(c)
	}
	return r
}

func defaultCapabilities() []*Capability {
	return []*Capability{
		{
			Name:        "document-create",
			Aliases:     []string{"google docs", "google doc", "docs"},
			Description: "Create, read or edit a Google Docs document.",
			Server:      "google_docs_sheets",
			Verbs:       []string{"create", "write", "draft", "document", "prepare", "outline", "summarize", "compile", "edit", "update"},
			Objects:     []string{"doc", "docs", "document", "report", "brief", "proposal", "notes", "outline", "summary", "memo", "letter", "resume"},
			Params: []Param{
				{Name: "document_title", Question: "What should the document be titled?", Hints: hints(reTitled, reQuoted)},
				{Name: "folder_location", Question: "Which folder should the document be saved in?", Hints: hints(reFolder)},
			},
		},
		{
			Name:        "spreadsheet-edit",
			Aliases:     []string{"google sheet", "google sheets", "sheets"},
			Description: "Create, read or edit a Google Sheets spreadsheet.",
			Server:      "google_docs_sheets",
			Verbs:       []string{"create", "update", "edit", "track", "log", "record", "fill", "add", "build", "enter", "calculate"},
			Objects:     []string{"spreadsheet", "sheet", "sheets", "budget", "tracker", "expense", "expenses", "table", "ledger", "row", "rows"},
			Params: []Param{
				{Name: "spreadsheet_title", Question: "What is the name of the spreadsheet?", Hints: hints(reTitled, reQuoted)},
				{Name: "worksheet", Question: "Which worksheet (tab) should be used?", Optional: true, Hints: hints(reWorksheet)},
				{Name: "values", Question: "Which values should be written?", Hints: hints(reValues)},
			},
		},
		{
			Name:        "calendar-create",
			Aliases:     []string{"calendar", "google calendar"},
			Description: "Create, read or edit Google Calendar events.",
			Server:      "google_calendar",
			Verbs:       []string{"schedule", "book", "create", "add", "set", "block", "arrange", "reschedule", "plan"},
			Objects:     []string{"meeting", "event", "appointment", "call", "calendar", "reminder", "session", "slot", "time"},
			Params: []Param{
				{Name: "title", Question: "What should the event be called?", Hints: hints(reTitled, reQuoted)},
				{Name: "start_time", Question: "When should it start (date and time)?", Hints: hints(reWeekday, reClock, reDate)},
				{Name: "duration", Question: "How long should it last?", Hints: hints(reDuration)},
				{Name: "attendees", Question: "Who should be invited?", Hints: hints(reEmailAddr, reWith)},
			},
		},
		{
			Name:        "message-send",
			Aliases:     []string{"slack"},
			Description: "Post, read or edit Slack messages.",
			Server:      "slack",
			Verbs:       []string{"send", "post", "message", "notify", "share", "announce", "ping"},
			Objects:     []string{"slack", "channel", "message", "team", "dm", "update", "announcement"},
			Params: []Param{
				{Name: "channel", Question: "Which Slack channel or person should receive it?", Hints: hints(reChannel, reTo)},
				{Name: "text", Question: "What should the message say?", Hints: hints(reBody, reQuoted)},
			},
		},
		{
			Name:        "mail-send",
			Aliases:     []string{"gmail", "email"},
			Description: "Send, read or draft Gmail messages.",
			Server:      "gmail",
			Verbs:       []string{"send", "email", "mail", "draft", "write", "reply", "forward", "compose"},
			Objects:     []string{"email", "mail", "gmail", "inbox", "reply", "letter", "invoice"},
			Params: []Param{
				{Name: "recipient", Question: "Who should the email be sent to (recipient)?", Hints: hints(reEmailAddr, reTo)},
				{Name: "subject", Question: "What should the subject line of the email be?", Hints: hints(reSubject, reQuoted)},
				{Name: "body", Question: "What should the body of the email say?", Hints: hints(reBody)},
			},
		},
		{
			Name:        "notion-page-create",
			Aliases:     []string{"notion create", "notion"},
			Description: "Create, read or edit Notion pages.",
			Server:      "notion",
			Verbs:       []string{"create", "add", "write", "document", "capture", "organize", "update"},
			Objects:     []string{"notion", "page", "wiki", "database", "journal", "board"},
			Params: []Param{
				{Name: "page_title", Question: "What should the Notion page be titled?", Hints: hints(reTitled, reQuoted)},
				{Name: "parent_page", Question: "Under which parent page should it be created?", Hints: hints(reParent)},
				{Name: "template", Question: "Should a specific template be used?", Optional: true, Hints: hints(reTemplate)},
			},
		},
	}
}

func hints(res ...*regexp.Regexp) []*regexp.Regexp { return res }
