package approval

import (
	"fmt"
	"time"

	"github.com/slack-go/slack"
)

// SafetyNote is attached to every approval card.
const SafetyNote = "Safety note: no structural members, no suspected asbestos or lead disturbance. Minimal demo only, document everything."

// PromptBlocks builds the threaded reply to a demo-intent mention: photo
// instructions plus the "Request approval" button. The payload must carry
// ActionRequestApproval.
func PromptBlocks(p Payload) []slack.Block {
	text := fmt.Sprintf(
		"*Demo request noted* — _%s_\nUpload a photo of the area to this thread, then hit the button below.",
		p.Item,
	)

	button := slack.NewButtonBlockElement(
		string(ActionRequestApproval),
		p.WithAction(ActionRequestApproval).Encode(),
		slack.NewTextBlockObject(slack.PlainTextType, "Request approval", false, false),
	).WithStyle(slack.StylePrimary)

	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, text, false, false),
			nil, nil,
		),
		slack.NewActionBlock("demo_request", button),
	}
}

// CardBlocks builds the approval card posted to approvers. breadcrumb is a
// human-readable pointer back to the origin (channel + thread), permalink a
// resolved link to the origin thread.
func CardBlocks(crewName, breadcrumb, permalink string, p Payload) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject(slack.PlainTextType, "Demo approval needed", false, false),
		),
		slack.NewSectionBlock(nil, cardFields(crewName, breadcrumb, p), nil),
	}

	if permalink != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("<%s|View thread and photos>", permalink), false, false),
			nil, nil,
		))
	}

	blocks = append(blocks,
		slack.NewContextBlock("safety_note",
			slack.NewTextBlockObject(slack.MarkdownType, SafetyNote, false, false),
		),
		slack.NewActionBlock("demo_decision",
			slack.NewButtonBlockElement(
				string(ActionApprove),
				p.WithAction(ActionApprove).Encode(),
				slack.NewTextBlockObject(slack.PlainTextType, "Approve", false, false),
			).WithStyle(slack.StylePrimary),
			slack.NewButtonBlockElement(
				string(ActionDecline),
				p.WithAction(ActionDecline).Encode(),
				slack.NewTextBlockObject(slack.PlainTextType, "Decline", false, false),
			).WithStyle(slack.StyleDanger),
			slack.NewButtonBlockElement(
				string(ActionMoreInfo),
				p.WithAction(ActionMoreInfo).Encode(),
				slack.NewTextBlockObject(slack.PlainTextType, "Ask for more info", false, false),
			),
		),
	)

	return blocks
}

// DecidedBlocks rewrites an approval card after a decision: the action block
// is gone and a decision annotation takes its place.
func DecidedBlocks(crewName, breadcrumb string, p Payload, approved bool, actorID string, decidedAt time.Time) []slack.Block {
	label := "✅ Approved"
	if !approved {
		label = "⛔ Declined"
	}
	annotation := fmt.Sprintf("%s by <@%s> · %s",
		label, actorID, decidedAt.UTC().Format("2006-01-02 15:04 MST"))

	return []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject(slack.PlainTextType, "Demo approval needed", false, false),
		),
		slack.NewSectionBlock(nil, cardFields(crewName, breadcrumb, p), nil),
		slack.NewContextBlock("decision",
			slack.NewTextBlockObject(slack.MarkdownType, annotation, false, false),
		),
	}
}

func cardFields(crewName, breadcrumb string, p Payload) []*slack.TextBlockObject {
	return []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Crew:*\n%s (<@%s>)", crewName, p.Requester), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Item:*\n%s", p.Item), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Origin:*\n%s", breadcrumb), false, false),
	}
}

// VerdictText is the message posted to the origin thread after a decision.
// The two verdicts are mutually exclusive by construction.
func VerdictText(approved bool, item string) string {
	if approved {
		return fmt.Sprintf("Approved—proceed with minimal demo and full documentation on %s.", item)
	}
	return fmt.Sprintf("Declined—hold demo on %s.", item)
}

// DecisionNoticeText is the private notice sent to the original requester.
func DecisionNoticeText(approved bool, item string) string {
	if approved {
		return fmt.Sprintf("Your demo request for %s was approved. Minimal demo, full documentation.", item)
	}
	return fmt.Sprintf("Your demo request for %s was declined. Hold demo for now.", item)
}

// ChecklistText is posted to the origin thread when an approver asks for more
// information.
func ChecklistText() string {
	return "Before we can decide, please add to this thread:\n" +
		"• a wide shot of the area\n" +
		"• a close-up of the suspect material\n" +
		"• a moisture-reading photo if you have a meter on site\n" +
		"• a note on any utilities (water, gas, electrical) in the removal path"
}

// PhotoRequiredText is the ephemeral notice when no qualifying photo is found.
const PhotoRequiredText = "I couldn't find a photo in this thread. Upload a photo of the area first, then request approval again."

// RequestSentText confirms to the origin thread that the card was posted.
func RequestSentText(item string) string {
	return fmt.Sprintf("Approval request for %s sent. Hold demo until you hear back here.", item)
}

// ReminderText is the nudge posted under a stale approval card.
func ReminderText(age time.Duration) string {
	return fmt.Sprintf("This demo request has been waiting %s for a decision.", age.Round(time.Minute))
}

// NotAuthorizedText is the ephemeral rejection for non-approvers.
const NotAuthorizedText = "Sorry, only the configured approvers can decide on demo requests."

// ApologyText is the generic short apology for unexpected handler failures.
const ApologyText = "Sorry, something went wrong on my side. Please try that again."
