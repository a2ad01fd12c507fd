package handlers

import (
	"fmt"
	"strings"

	"pintatina/internal/batch"
	"pintatina/internal/mention"
	"pintatina/internal/prompt"
	"pintatina/internal/reference"
)

const barWidth = prompt.Count

func progressBar(done, total int) string {
	if total <= 0 {
		return ""
	}
	filled := done * barWidth / total
	return strings.Repeat("▓", filled) + strings.Repeat("░", barWidth-filled)
}

// statusText renders the collection as the single message that is edited
// while pages are generated.
func statusText(snap batch.Snapshot) string {
	var b strings.Builder
	done := snap.Completed()
	fmt.Fprintf(&b, "🎨 %s %d/%d\n\n", progressBar(done, prompt.Count), done, prompt.Count)
	for _, it := range snap.Items {
		fmt.Fprintf(&b, "%s Página %d\n", statusIcon(it.Status), it.Index+1)
	}
	if snap.Settled() && snap.HasError() {
		b.WriteString("\nAlgunas páginas fallaron. Usa /reintentar para volver a intentarlo.")
	}
	return b.String()
}

func statusIcon(s batch.Status) string {
	switch s {
	case batch.StatusLoading:
		return "⏳"
	case batch.StatusCompleted:
		return "✅"
	case batch.StatusError:
		return "❌"
	default:
		return "▫️"
	}
}

func pageCaption(index int) string {
	return fmt.Sprintf("Página %d de %d", index+1, prompt.Count)
}

// photosText confirms the stored photos and lists the tokens that cite them.
func photosText(count, dropped int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📷 Tengo %d de %d fotos.", count, 4)
	if dropped > 0 {
		fmt.Fprintf(&b, " Ignoré %d porque no caben más.", dropped)
	}
	if count > 0 {
		tokens := make([]string, 0, count)
		for i := 1; i <= count; i++ {
			tokens = append(tokens, mention.Token(i))
		}
		fmt.Fprintf(&b, "\nPuedes citarlas en la descripción con %s.", strings.Join(tokens, ", "))
	}
	b.WriteString("\nAhora escribe qué quieres en la colección.")
	return b.String()
}

func danglingText(ordinals []int) string {
	tokens := make([]string, 0, len(ordinals))
	for _, n := range ordinals {
		tokens = append(tokens, mention.Token(n))
	}
	return fmt.Sprintf("⚠️ La descripción cita %s pero no hay foto con ese número. Se enviará tal cual.", strings.Join(tokens, ", "))
}
