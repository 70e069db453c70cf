// Package models defines intent types shared between the classifier and the
// command processor.
package models

// IntentType identifies the tour action a free-text message requests.
type IntentType string

const (
	// IntentFullTour requests a walkthrough of the whole product.
	IntentFullTour IntentType = "full_tour"
	// IntentSectionTour requests a walkthrough of one product section.
	IntentSectionTour IntentType = "section_tour"
	// IntentTourStop requests cancelling the active tour.
	IntentTourStop IntentType = "tour_stop"
	// IntentTourNext requests advancing to the next step.
	IntentTourNext IntentType = "tour_next"
	// IntentTourPause requests suspending the active tour.
	IntentTourPause IntentType = "tour_pause"
	// IntentTourResume requests resuming a paused tour.
	IntentTourResume IntentType = "tour_resume"
)

// Intent is the classifier's result for one message. Ephemeral, never persisted.
type Intent struct {
	Intent     IntentType `json:"intent"`
	Confidence float64    `json:"confidence"`
	Section    string     `json:"section,omitempty"`   // canonical section ID, section_tour only
	ModuleID   string     `json:"module_id,omitempty"` // resolved tour module, start intents only
}

// IsStartIntent reports whether the intent should launch a new tour session.
func (i *Intent) IsStartIntent() bool {
	return i.Intent == IntentFullTour || i.Intent == IntentSectionTour
}

// CommandFor maps the intent to its generic tour command.
func (i *Intent) CommandFor() TourCommand {
	switch i.Intent {
	case IntentFullTour, IntentSectionTour:
		return TourCommandStart
	case IntentTourStop:
		return TourCommandStop
	case IntentTourNext:
		return TourCommandNext
	case IntentTourPause:
		return TourCommandPause
	case IntentTourResume:
		return TourCommandResume
	default:
		return ""
	}
}
