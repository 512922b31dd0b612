// Package prompt renders the generation prompt from its budgeted parts.
//
// Sections always appear in the same order: role, persona, reference
// style, feedback examples, conversation, goal, exclusion (regeneration
// only) and the output format, which is always last. Section headers are
// emitted even when their content is empty. A skeleton input renders every
// piece of conditional framing with no content, so its size bounds the
// fixed overhead of any prompt built from the same settings.
package prompt

import (
	"fmt"
	"strings"

	ctxengine "github.com/replypass/replypass/internal/context"
	"github.com/replypass/replypass/internal/regen"
	"github.com/replypass/replypass/pkg/reply"
)

// Input holds the fitted fragments of one prompt.
type Input struct {
	Role         string // overrides the assembler's role when set
	Persona      ctxengine.PersonaContext
	Conversation string
	Feedback     ctxengine.FeedbackCorpus
	Goal         string
	Exclusion    *regen.Exclusion // nil outside regeneration

	skeleton bool
}

// Skeleton returns a copy with the budgeted fragments emptied: reference
// excerpt, analysis, conversation and feedback. Framing that is normally
// written only around present content is kept.
func (in Input) Skeleton() Input {
	in.Persona.ReferenceExcerpt = ""
	in.Persona.Analysis = nil
	in.Conversation = ""
	in.Feedback = ctxengine.FeedbackCorpus{}
	in.skeleton = true
	return in
}

// Assembler renders prompts.
type Assembler struct {
	role string
}

// New creates an Assembler with the given role text.
func New(role string) *Assembler {
	if strings.TrimSpace(role) == "" {
		role = DefaultRole
	}
	return &Assembler{role: role}
}

// Assemble renders the full prompt.
func (a *Assembler) Assemble(in Input) string {
	var b strings.Builder
	if r := strings.TrimSpace(in.Role); r != "" {
		b.WriteString(r)
	} else {
		b.WriteString(a.role)
	}

	section(&b, "Persona")
	writePersona(&b, in.Persona, in.skeleton)

	section(&b, "Reference style")
	if in.Persona.ReferenceExcerpt == "" && !in.skeleton {
		b.WriteString("(no reference text provided)\n")
	} else {
		b.WriteString("The following text was written by the user. It is the ground truth for their voice: ")
		b.WriteString("match its vocabulary, sentence length, punctuation and emoji habits. ")
		b.WriteString("Where it disagrees with the analysis above, follow this text.\n\n")
		b.WriteString("<reference>\n")
		b.WriteString(in.Persona.ReferenceExcerpt)
		b.WriteString("\n</reference>\n")
	}

	section(&b, "Feedback on earlier suggestions")
	writeFeedback(&b, in.Feedback, in.skeleton)

	section(&b, "Conversation")
	b.WriteString("Oldest message first. \"Me\" is the user, \"Partner\" is the person they are talking to.\n\n")
	if in.Conversation == "" {
		b.WriteString("(no messages yet)\n")
	} else {
		b.WriteString(in.Conversation)
		b.WriteString("\n")
	}

	section(&b, "Goal")
	if goal := strings.TrimSpace(in.Goal); goal != "" {
		b.WriteString("The user wants this reply to achieve: ")
		b.WriteString(goal)
		b.WriteString("\n")
	} else {
		b.WriteString("No goal was given. Infer what the user most likely wants from the conversation and reply toward it.\n")
	}

	if in.Exclusion != nil {
		section(&b, "Previous suggestions")
		writeExclusion(&b, in.Exclusion)
	}

	writeFormat(&b)
	return b.String()
}

// Correction renders a re-prompt asking the model to fix its previous
// answer. The output format instruction is repeated last.
func (a *Assembler) Correction(prompt, raw, defect string) string {
	var b strings.Builder
	b.WriteString(prompt)
	section(&b, "Correction")
	b.WriteString("Your previous answer could not be used: ")
	b.WriteString(defect)
	b.WriteString("\n\nPrevious answer:\n<answer>\n")
	b.WriteString(raw)
	b.WriteString("\n</answer>\n\nAnswer again and fix the problem.\n")
	writeFormat(&b)
	return b.String()
}

func section(b *strings.Builder, title string) {
	b.WriteString("\n\n## ")
	b.WriteString(title)
	b.WriteString("\n\n")
}

var emojiGuidance = map[reply.EmojiTier]string{
	reply.EmojiNone:     "never use emoji",
	reply.EmojiMinimal:  "use an emoji only rarely",
	reply.EmojiNormal:   "use emoji now and then",
	reply.EmojiFrequent: "use emoji often",
	reply.EmojiHeavy:    "use emoji in almost every message",
}

var casualnessGuidance = [...]string{
	1: "very formal",
	2: "polite",
	3: "neutral",
	4: "casual",
	5: "very casual, like close friends",
}

func writePersona(b *strings.Builder, pc ctxengine.PersonaContext, skeleton bool) {
	p := pc.Persona
	if p.Casualness >= reply.MinCasualness && p.Casualness <= reply.MaxCasualness {
		fmt.Fprintf(b, "- Casualness: %d/5 (%s)\n", p.Casualness, casualnessGuidance[p.Casualness])
	}
	if g, ok := emojiGuidance[p.EmojiUsage]; ok {
		fmt.Fprintf(b, "- Emoji: %s\n", g)
	}

	q := p.QuickSettings
	if q.Honorifics != "" {
		fmt.Fprintf(b, "- Honorifics: %s\n", q.Honorifics)
	}
	if q.ResponseLength != "" {
		fmt.Fprintf(b, "- Reply length: %s\n", q.ResponseLength)
	}
	if q.ThinkingStyle != "" {
		fmt.Fprintf(b, "- Thinking style: %s\n", q.ThinkingStyle)
	}
	if q.HumorLevel != "" {
		fmt.Fprintf(b, "- Humor: %s\n", q.HumorLevel)
	}

	a := pc.Analysis
	if skeleton {
		a = &reply.PersonaAnalysis{}
	}
	if a != nil {
		b.WriteString("\nAnalysis of the user's style (secondary to the reference text):\n")
		if a.Personality != "" || skeleton {
			b.WriteString("Personality: ")
			b.WriteString(a.Personality)
			b.WriteString("\n")
		}
		if a.Patterns != "" || skeleton {
			b.WriteString("Patterns: ")
			b.WriteString(a.Patterns)
			b.WriteString("\n")
		}
	}
}

func writeFeedback(b *strings.Builder, c ctxengine.FeedbackCorpus, skeleton bool) {
	if c.Empty() && !skeleton {
		b.WriteString("(no feedback yet)\n")
		return
	}
	if len(c.Positive) > 0 || skeleton {
		b.WriteString("Suggestions that worked. Write more like these:\n")
		for _, ex := range c.Positive {
			b.WriteString(ctxengine.RenderExample(ex))
			b.WriteString("\n")
		}
	}
	if len(c.Negative) > 0 || skeleton {
		if len(c.Positive) > 0 || skeleton {
			b.WriteString("\n")
		}
		b.WriteString("Suggestions that did not work. Avoid their tone and content:\n")
		for _, ex := range c.Negative {
			b.WriteString(ctxengine.RenderExample(ex))
			b.WriteString("\n")
		}
	}
}

func writeExclusion(b *strings.Builder, ex *regen.Exclusion) {
	b.WriteString("The user asked for new suggestions. These were offered last time:\n")
	for _, p := range ex.Previous {
		fmt.Fprintf(b, "- [%s] %s (%s)\n", p.Category, p.Text, p.Label)
	}
	b.WriteString("\nEvery new suggestion must be materially different from all of the above. ")
	b.WriteString("Do not repeat or lightly reword any of them.\n")
}

func writeFormat(b *strings.Builder) {
	section(b, "Output format")
	fmt.Fprintf(b, "Reply in the language of the conversation. Return only a JSON array of exactly %d objects and nothing else:\n", reply.SuggestionCount)
	b.WriteString(`[{"category": "short label for the approach", "text": "the message to send"}, ...]`)
	b.WriteString("\nEach category must differ. Do not wrap the array in code fences.")
}
