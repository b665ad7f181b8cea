package ai

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"freelancer-bot/models"
)

// ButtonsSentinel is appended by the model when it proposes a specific
// freelancer and the client should get accept/reject buttons.
const ButtonsSentinel = "[SHOW_BUTTONS]"

// Categories the marketplace recognises; InferServiceCategory answers with one of these.
var Categories = []string{
	"design", "programming", "marketing", "writing", "translation",
	"video", "photography", "consulting",
}

// categoryKeywords are matched per word: Latin keywords must equal a word,
// Arabic ones may sit inside a word to allow attached prefixes such as ال.
var categoryKeywords = map[string][]string{
	"design":      {"تصميم", "مصمم", "شعار", "لوجو", "هوية", "logo", "logos", "design", "designer"},
	"programming": {"برمجة", "مبرمج", "تطبيق", "موقع", "app", "apps", "application", "website", "websites", "developer"},
	"marketing":   {"تسويق", "اعلان", "إعلان", "سوشال", "marketing", "ads", "advertising"},
	"writing":     {"كتابة", "محتوى", "مقال", "كاتب", "content", "copywriting", "copywriter"},
	"translation": {"ترجمة", "مترجم", "translation", "translator"},
	"video":       {"فيديو", "مونتاج", "موشن", "video", "montage"},
	"photography": {"تصوير", "مصور", "photo", "photos", "photographer"},
	"consulting":  {"استشارة", "مستشار", "consult", "consultant"},
}

const baseSystemPrompt = `أنت مساعد منصة لربط العملاء بالمستقلين عبر واتساب.
تحدث بالعربية بلهجة ودية ومختصرة، واسأل عن تفاصيل المشروع عند الحاجة.
لا تخترع مستقلين غير موجودين في البيانات المرفقة.`

const recommendationRules = `عندما تقترح مستقلاً محدداً من البيانات اذكر اسمه وتخصصه وسبب الترشيح،
ثم أضف في نهاية ردك العلامة ` + ButtonsSentinel + ` بالضبط ليتمكن العميل من القبول أو الرفض.
لا تضف العلامة إذا لم تقترح مستقلاً محدداً.`

func buildCatalogPrompt(catalog *models.Catalog, userName string) string {
	var sb strings.Builder
	sb.WriteString(baseSystemPrompt)
	sb.WriteString("\n\n")
	sb.WriteString(recommendationRules)
	if userName != "" {
		fmt.Fprintf(&sb, "\n\nاسم العميل: %s", userName)
	}
	sb.WriteString("\n\nالبيانات المتاحة:\n")
	sb.WriteString(formatCatalog(catalog))
	return sb.String()
}

// formatCatalog renders one compact line per record to keep the prompt small.
func formatCatalog(catalog *models.Catalog) string {
	if catalog == nil || len(catalog.Freelancers) == 0 {
		return "لا يوجد مستقلون مسجلون حالياً."
	}

	profiles := make(map[string]models.Profile, len(catalog.Profiles))
	for _, p := range catalog.Profiles {
		profiles[p.FreelancerID] = p
	}
	projects := make(map[string][]string)
	for _, p := range catalog.Projects {
		projects[p.FreelancerID] = append(projects[p.FreelancerID], p.Title)
	}

	var sb strings.Builder
	for _, f := range catalog.Freelancers {
		id := f.ID.Hex()
		fmt.Fprintf(&sb, "- %s | %s", f.Name, f.Category)
		if len(f.Skills) > 0 {
			fmt.Fprintf(&sb, " | مهارات: %s", strings.Join(f.Skills, "، "))
		}
		if f.Rating > 0 {
			fmt.Fprintf(&sb, " | تقييم: %.1f", f.Rating)
		}
		if f.IsVerified {
			sb.WriteString(" | موثق")
		}
		if p, ok := profiles[id]; ok && p.Title != "" {
			fmt.Fprintf(&sb, " | %s", p.Title)
		}
		if titles := projects[id]; len(titles) > 0 {
			fmt.Fprintf(&sb, " | أعمال: %s", strings.Join(titles, "، "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func summarizePrompt() string {
	return "لخص في جملة واحدة ما الخدمة التي يطلبها العميل من المحادثة السابقة. أجب بالملخص فقط."
}

func categoryPrompt(request string) string {
	return fmt.Sprintf("صنف الطلب التالي إلى فئة واحدة فقط من: %s.\nأجب باسم الفئة بالإنجليزية فقط.\nالطلب: %s",
		strings.Join(Categories, ", "), request)
}

// matchCategory maps free text to a known category, first by category name
// then by keyword.
func matchCategory(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
	})
	for _, c := range Categories {
		for _, w := range words {
			if w == c {
				return c
			}
		}
	}
	for _, c := range Categories {
		for _, kw := range categoryKeywords[c] {
			if containsKeyword(words, kw) {
				return c
			}
		}
	}
	return ""
}

func containsKeyword(words []string, kw string) bool {
	latin := isASCII(kw)
	for _, w := range words {
		if w == kw || (!latin && strings.Contains(w, kw)) {
			return true
		}
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
