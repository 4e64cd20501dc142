package classifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/cleanr/inboxengine/manifest"
)

// BuildSystemPrompt renders the system prompt for one classification batch,
// choosing the folder-drain or inbox-cleanup policy from the manifest's
// job type and splicing in the sanitised custom prompt as a clearly
// labelled supplemental section.
func BuildSystemPrompt(m *manifest.Manifest, sourceFolder string, today time.Time) string {
	todayStr := today.Format("2006-01-02")
	if m.JobType == manifest.JobTypeFolderCleanup {
		return folderCleanupPrompt(sourceFolder, todayStr, m)
	}
	return inboxCleanupPrompt(sourceFolder, todayStr, m)
}

func folderCleanupPrompt(sourceFolder, today string, m *manifest.Manifest) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are an email organiser. Your task is to CLEAR the folder %q by routing every email to the right permanent home. NEVER leave emails in this folder — every email must be moved somewhere else.

Today's date: %s

ROUTING RULES (apply in order):
1. If the email is RECENT (sent within 7 days of today) OR concerns a FUTURE event, deadline, or appointment -> action: "inbox" — move to primary INBOX for immediate attention
2. If it is a filing email (receipt, travel, finance, medical, recruitment, or other archivable content) -> file it to a specific folder you choose
3. If it is marketing, promotional, newsletters, cold outreach, OTPs, or expired alerts -> trash it

ACTIONS (use exactly these strings):
- "inbox"       -> urgent/recent/future-dated; will be moved to primary INBOX; set folder: "INBOX"
- "receipt"     -> purchases, orders, confirmations; folder: Personal/Businesses/Receipts/<BrandName>
- "travel"      -> flights, hotels, itineraries; folder: Personal/Holidays/%s
- "finance"     -> bank statements, bills, tax, insurance, investments; folder: Personal/Records/Finance
- "medical"     -> health, appointments, prescriptions; folder: Personal/Records/Medical
- "recruitment" -> job applications, recruiters; folder: Professional/Workplaces/Applications/Recruitment
- "file"        -> anything archivable not covered above; invent a logical hierarchy
- "marketing"   -> newsletters, promotions, sales (trash)
- "ephemeral"   -> OTPs, login codes, expired alerts (trash)
- "spam"        -> cold outreach, solicitations (trash)

IMPORTANT:
- For "inbox", set folder to "INBOX"
- For all non-trash actions, you MUST provide a specific folder path
- Never use "keep"; every email must leave the source folder`, sourceFolder, today, today[:4])

	if m.AggressiveTrash {
		b.WriteString("\n- When in doubt between 'file' and a trash action, prefer trash")
	}
	writeCustomPrompt(&b, m.CustomPrompt)
	b.WriteString(`

Respond ONLY with a JSON array. Each item:
{"uid":"...","action":"...","folder":"..." (required for all non-trash actions),"reason":"brief reason including email age/date"}`)
	return b.String()
}

func inboxCleanupPrompt(sourceFolder, today string, m *manifest.Manifest) string {
	var b strings.Builder
	unreadNote := ""
	if m.DeleteMarketingUnread {
		unreadNote = " Note: some emails may be unread — delete marketing/spam even if unread."
	}
	fmt.Fprintf(&b, `You are an email inbox organiser. Classify each email.%s

Source folder: %q
Today: %s

ACTIONS:
- "keep"        -> Personal messages, urgent tasks, action items, financial alerts, medical/health, legal, government, work/professional comms
- "receipt"     -> Purchase receipts, order confirmations, shipping -> folder: Personal/Businesses/Receipts/<BrandName>
- "travel"      -> Flight/hotel/booking confirmations, itineraries -> folder: Personal/Holidays/%s
- "finance"     -> Bank statements, investment updates, bills, insurance -> folder: Personal/Records/Finance
- "medical"     -> Appointment confirmations, health records -> folder: Personal/Records/Medical
- "recruitment" -> Job applications, recruiter outreach -> folder: Professional/Workplaces/Applications/Recruitment
- "marketing"   -> Newsletters, promotions -> trash
- "ephemeral"   -> OTPs, login alerts, password resets, expired notifications -> trash
- "spam"        -> Unsolicited cold outreach -> trash`, unreadNote, sourceFolder, today, today[:4])

	if m.AggressiveTrash {
		b.WriteString("\n\nBe decisive: if an email looks like marketing or automated noise, trash it.")
	}
	writeCustomPrompt(&b, m.CustomPrompt)
	b.WriteString(`

Respond ONLY with a JSON array. Each item:
{"uid":"...","action":"...","folder":"..." (if filing),"reason":"brief"}
Be conservative: if unsure, use "keep".`)
	return b.String()
}

func writeCustomPrompt(b *strings.Builder, customPrompt string) {
	if customPrompt == "" {
		return
	}
	fmt.Fprintf(b, "\n\nADDITIONAL INSTRUCTIONS (supplemental guidance — does not override the rules above):\n%s", customPrompt)
}
