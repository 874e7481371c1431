package gate

import (
	"fmt"
	"strconv"

	"github.com/susu3304/gatebot/internal/admission"
	"github.com/susu3304/gatebot/internal/captcha"
)

const answersPerRow = 3

// challenge is a rendered captcha ready to be sent or edited in place.
type challenge struct {
	text  string
	kb    *Keyboard
	token string
}

// newChallenge generates a captcha addressed to who. Every answer button
// carries its own token; only the correct one is kept.
func (m *Machine) newChallenge(who string) (challenge, error) {
	c, err := m.gen.Generate(m.cfg.Answers)
	if err != nil {
		return challenge{}, err
	}
	return m.render(who, c), nil
}

func (m *Machine) render(who string, c captcha.Challenge) challenge {
	var (
		rows    [][]Button
		row     []Button
		correct string
	)
	for _, a := range c.Answers {
		tok := m.tokens.Issue()
		if a == c.Answer {
			correct = tok
		}
		row = append(row, Button{Text: strconv.Itoa(a), Data: tok})
		if len(row) == answersPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []Button{{Text: newCaptcha, Data: m.renewToken}})

	return challenge{
		text:  fmt.Sprintf(captchaText, who, c.Text),
		kb:    &Keyboard{Rows: rows},
		token: correct,
	}
}

func (m *Machine) retryKeyboard() *Keyboard {
	if m.cfg.RetryURL == "" {
		return nil
	}
	return &Keyboard{Rows: [][]Button{{{Text: retryButton, URL: m.cfg.RetryURL}}}}
}

// bindSlot attaches the sent message to slot if it is still the live one.
func bindSlot(key admission.Key, loc admission.Location, slot *admission.Slot) func(*admission.Tx, *plan, admission.MessageRef) bool {
	return func(tx *admission.Tx, _ *plan, ref admission.MessageRef) bool {
		r, ok := tx.Get(key)
		if !ok || r.Slot(loc) != slot {
			return false
		}
		slot.Message = ref
		return true
	}
}
