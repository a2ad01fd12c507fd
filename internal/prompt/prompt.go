package prompt

import (
	"fmt"
	"strings"

	"pintatina/internal/domain"
	"pintatina/internal/mention"
)

// Count is the number of pages in a collection; one modifier per page.
const Count = 10

// AspectRatio is the output shape requested for every page.
const AspectRatio = "3:4"

// modifiers vary composition and technique only. The subject and theme
// always come from the user's description. Index i is used by page i.
var modifiers = [Count]string{
	"Wide-angle shot with simple background",
	"Close-up portrait focus on the subjects",
	"Dynamic perspective from a slightly low angle",
	"Clean bold outlines with balanced composition",
	"Classic storybook style framing",
	"Detailed line work for a richer page",
	"Subject in a full-body action pose",
	"Medium-shot with centered composition",
	"Simplified artistic sketch style",
	"Professional high-contrast line art",
}

const styleConstraints = `You are a professional coloring book artist.

CRITICAL RULE: STICK TO THE USER'S DESCRIPTION.
Do NOT add any themes, backgrounds, or costumes (like space, pirates, or forests) unless explicitly mentioned in the USER REQUEST.
Your task is to take the user's specific scene and render it as a coloring page.

OUTPUT RULES:
1. COLOR: NO COLOR ALLOWED. Only pure black and white.
2. STYLE: Clean, bold black outlines (line art).
3. NO SHADING: No shadows, no grays, no gradients, no textures. Just white background and black lines.
4. SUBJECT: Wholesome and child-appropriate.
5. COMPOSITION: Use the provided @img references to map facial features of real people to the characters.
6. QUALITY: High contrast, professional lines.
7. NO TEXT: No letters or UI elements.`

// Modifier returns the fixed modifier for page index.
func Modifier(index int) (string, error) {
	if index < 0 || index >= Count {
		return "", fmt.Errorf("page index %d out of range [0,%d)", index, Count)
	}
	return modifiers[index], nil
}

// Modifiers returns a copy of the modifier table in page order.
func Modifiers() []string {
	out := make([]string, Count)
	copy(out, modifiers[:])
	return out
}

// Compose renders the full request text for one page. The preamble is the
// same for every page; only the variation line changes.
func Compose(description, modifier string) string {
	var b strings.Builder
	b.WriteString(styleConstraints)
	b.WriteString("\n\nUSER REQUEST: Coloring page for children: ")
	b.WriteString(strings.TrimSpace(description))
	b.WriteString("\nVariation: ")
	b.WriteString(modifier)
	b.WriteString("\nRemember: pure black and white line art only, strictly follow the user description.")
	return b.String()
}

// BuildRequest builds the request for page index. It is a pure function of
// its inputs: same description, index and photos give the same request.
func BuildRequest(description string, index int, images []domain.ReferenceImage) (domain.GenerationRequest, error) {
	modifier, err := Modifier(index)
	if err != nil {
		return domain.GenerationRequest{}, err
	}

	attached := make([]domain.ReferenceImage, len(images))
	copy(attached, images)

	return domain.GenerationRequest{
		Text:        Compose(description, modifier),
		Images:      attached,
		AspectRatio: AspectRatio,
	}, nil
}

// ReferenceLabel is the text part placed before each attached photo so the
// model can match it to the @imgK tokens in the description.
func ReferenceLabel(ordinal int) string {
	return fmt.Sprintf("Reference image for subject %s:", mention.Token(ordinal))
}
