package tour

import "github.com/donna-assistant/donna/internal/models"

// BuiltinModules returns the default tour catalog shipped with the service.
// The catalog registers these only when no module with the same ID exists,
// so operator edits are never clobbered on restart.
func BuiltinModules() []models.TourModule {
	return []models.TourModule{
		{
			ModuleID:    "tour_dashboard",
			ModuleName:  "Dashboard Tour",
			Description: "A walkthrough of the main dashboard and its widgets.",
			SectionID:   "dashboard",
			OrderIndex:  1,
			IsActive:    true,
			StepSequence: []models.TourStep{
				{StepID: "dashboard_overview", Title: "Your Dashboard", Description: "The home view of your workspace"},
				{StepID: "dashboard_activity", Title: "Activity Feed", Description: "Recent conversations and tasks"},
				{StepID: "dashboard_quick_actions", Title: "Quick Actions", Description: "Shortcuts to everyday work"},
			},
			TextPayload: map[string]string{
				"dashboard_overview":      "This is your dashboard. Everything important lands here first.",
				"dashboard_activity":      "The activity feed shows your latest conversations, calls and emails in one stream.",
				"dashboard_quick_actions": "Use quick actions to start a campaign, reply to a message or review your day.",
			},
			UIHooks: map[string]models.UIHook{
				"dashboard_overview":      {Selector: "#dashboard", Action: "highlight", Placement: "bottom"},
				"dashboard_activity":      {Selector: "#activity-feed", Action: "highlight", Placement: "right"},
				"dashboard_quick_actions": {Selector: "#quick-actions", Action: "highlight", Placement: "top"},
			},
		},
		{
			ModuleID:    "tour_inbox",
			ModuleName:  "Inbox Tour",
			Description: "How messages from every channel arrive in one place.",
			SectionID:   "inbox",
			OrderIndex:  2,
			IsActive:    true,
			StepSequence: []models.TourStep{
				{StepID: "inbox_unified", Title: "Unified Inbox", Description: "SMS, email and chat in one list"},
				{StepID: "inbox_filters", Title: "Filters", Description: "Slice the inbox by channel or state"},
				{StepID: "inbox_replies", Title: "Assisted Replies", Description: "Drafts prepared for your approval"},
			},
			TextPayload: map[string]string{
				"inbox_unified": "Every customer message, whatever the channel, lands in this single inbox.",
				"inbox_filters": "Filters let you focus on one channel or on conversations waiting for you.",
				"inbox_replies": "For each message a reply is drafted for you. Approve, edit or discard it.",
			},
			UIHooks: map[string]models.UIHook{
				"inbox_unified": {Selector: "#inbox", Action: "highlight", Placement: "bottom"},
				"inbox_filters": {Selector: "#inbox-filters", Action: "highlight", Placement: "right"},
			},
		},
		{
			ModuleID:    "tour_marketing",
			ModuleName:  "Marketing Tour",
			Description: "Campaigns, audiences and scheduled sends.",
			SectionID:   "marketing",
			OrderIndex:  3,
			IsActive:    true,
			StepSequence: []models.TourStep{
				{StepID: "marketing_campaigns", Title: "Campaigns", Description: "Your running and drafted campaigns"},
				{StepID: "marketing_audience", Title: "Audiences", Description: "Who each campaign reaches"},
				{StepID: "marketing_schedule", Title: "Scheduling", Description: "When campaigns go out"},
			},
			TextPayload: map[string]string{
				"marketing_campaigns": "The marketing tab lists every campaign with its status and results.",
				"marketing_audience":  "Audiences group your contacts so each campaign reaches the right people.",
				"marketing_schedule":  "Schedule sends for the times your customers actually read them.",
			},
			UIHooks: map[string]models.UIHook{
				"marketing_campaigns": {Selector: "#campaigns", Action: "highlight", Placement: "bottom"},
			},
		},
		{
			ModuleID:    "tour_calls",
			ModuleName:  "Calls Tour",
			Description: "Call handling, transcripts and follow-ups.",
			SectionID:   "calls",
			OrderIndex:  4,
			IsActive:    true,
			StepSequence: []models.TourStep{
				{StepID: "calls_log", Title: "Call Log", Description: "Every answered and missed call"},
				{StepID: "calls_transcripts", Title: "Transcripts", Description: "Searchable text of each call"},
			},
			TextPayload: map[string]string{
				"calls_log":         "The call log records every call with caller, duration and outcome.",
				"calls_transcripts": "Each call is transcribed so you can search and review what was said.",
			},
		},
		{
			ModuleID:    "tour_email",
			ModuleName:  "Email Tour",
			Description: "Connected mailboxes and drafted replies.",
			SectionID:   "email",
			OrderIndex:  5,
			IsActive:    true,
			StepSequence: []models.TourStep{
				{StepID: "email_accounts", Title: "Connected Accounts", Description: "Mailboxes linked to your workspace"},
				{StepID: "email_drafts", Title: "Drafted Replies", Description: "Replies prepared in your voice"},
			},
			TextPayload: map[string]string{
				"email_accounts": "Connect your mailboxes here so email joins the unified inbox.",
				"email_drafts":   "Replies are drafted in your configured voice and wait for your approval.",
			},
		},
		{
			ModuleID:    "tour_settings",
			ModuleName:  "Settings Tour",
			Description: "Business profile and assistant personality.",
			SectionID:   "settings",
			OrderIndex:  6,
			IsActive:    true,
			StepSequence: []models.TourStep{
				{StepID: "settings_profile", Title: "Business Profile", Description: "Your name and business details"},
				{StepID: "settings_personality", Title: "Personality", Description: "How the assistant sounds"},
			},
			TextPayload: map[string]string{
				"settings_profile":     "Keep your business profile current. It shapes every generated reply.",
				"settings_personality": "Tune the assistant's tone here, from formal to friendly.",
			},
			UIHooks: map[string]models.UIHook{
				"settings_personality": {Selector: "#personality", Action: "highlight", Placement: "left"},
			},
		},
	}
}
