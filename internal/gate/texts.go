package gate

import (
	"fmt"
	"strings"
	"time"
)

const (
	captchaText = "Please %s, to confirm you are a human solve the following captcha (a simple math operation):\n\n%s\n\nResult:"
	newCaptcha  = "🔄 New captcha"
	retryButton = "✍ Solve another captcha"

	solvedGroupText   = "✅ Correct captcha %s. You can now send text messages without links. The restriction is lifted in %s."
	solvedPrivateText = "✅ Correct captcha. You can go back to the group now."
	solvedAlert       = "✅ Correct answer."

	canNotUse = "You will not be able to use the group. Contact an administrator if you think this is a mistake. You can join again in %s."

	wrongGroupText   = "⛔️ Wrong captcha %s. Send `!start` to me in a private message to try another one."
	wrongPrivateText = "⛔️ Wrong captcha. " + canNotUse
	wrongAlert       = "⛔️ Wrong answer."

	timeoutText = "⛔️ Time to solve the captcha is over. " + canNotUse
	leaveText   = "⛔️ You are no longer a member of the group. " + canNotUse

	startMenuText   = "You have a captcha pending to solve. Do you want to solve a new one?"
	startExpelled   = "You can not join these groups yet:\n%s"
	startNothing    = "You have no captcha pending to solve."
	expelledLine    = "• %s until %s (%s)"
	initMenuText    = "Choose the group of the captcha you want to solve:"
	processingText  = "Processing %s"
	cancelText      = "Alright, see you later."
	incorrectText   = "I did not understand that. Use the buttons or send `!cancel`."
	unavailableText = "That captcha can no longer be retried."
	yesLabel        = "Yes"
	noLabel         = "No"
	choiceLabel     = "%d• %s"

	greetOne  = "Welcome %s! Read the pinned message to learn the rules of the group."
	greetMany = "Welcome to all of you, %s! Read the pinned message to learn the rules of the group."
	greetAnd  = " and "
	greetSep  = ", "

	spamWarning = "%s I deleted your message because it looks like spam (warning %d of %d)."

	helpText = "I check that new members are human before they can post.\n\n" +
		"New members get a simple math captcha and have %s to solve it. " +
		"After solving it they can only send text without links for %s.\n\n" +
		"Send `!start` to me in a private message to retry a wrong captcha, `!cancel` to stop."

	reasonTimeout   = "captcha not resolved in time (%s)"
	reasonSpammer   = "spammer"
	reasonBadMember = "%s (greeting check)"
)

// durationText spells d out in days, hours, minutes and seconds.
func durationText(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}
	secs := int64(d / time.Second)
	units := []struct {
		size int64
		name string
	}{
		{86400, "day"},
		{3600, "hour"},
		{60, "minute"},
		{1, "second"},
	}
	var parts []string
	for _, u := range units {
		n := secs / u.size
		secs %= u.size
		if n == 0 {
			continue
		}
		s := fmt.Sprintf("%d %s", n, u.name)
		if n > 1 {
			s += "s"
		}
		parts = append(parts, s)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + greetAnd + parts[len(parts)-1]
}

// userName is the name used to greet u, or "" when it has none worth using.
func userName(u Member) string {
	name := strings.TrimSpace(u.Name)
	if len([]rune(name)) > 2 {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return name
}

func mention(u Member) string {
	if u.Mention != "" {
		return u.Mention
	}
	name := strings.TrimSpace(u.Name)
	if u.Username == "" {
		return name
	}
	if name == "" {
		return "@" + u.Username
	}
	return fmt.Sprintf("%s (@%s)", name, u.Username)
}

// greetingText lists every name greeted so far in the current batch.
func greetingText(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf(greetOne, names[0])
	}
	last := len(names) - 1
	return fmt.Sprintf(greetMany, strings.Join(names[:last], greetSep)+greetAnd+names[last])
}
