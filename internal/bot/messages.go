package bot

import (
	"fmt"
	"strings"
	"time"

	"freelancer-bot/internal/whatsapp"
	"freelancer-bot/models"
)

// Button IDs carried by interactive replies.
const (
	ButtonAcceptFreelancer = "accept_freelancer"
	ButtonRejectFreelancer = "reject_freelancer"
	ButtonSearchMore       = "search_more"
)

const (
	PendingPaymentMessage = "❌ لا يمكنني الرد عليك حالياً لأن لديك عملية دفع معلقة.\n" +
		"يرجى إكمال الدفع عبر الرابط المرسل لك، أو كتابة /info لعرض تفاصيل الطلب، أو /reset لإلغائه."

	GenericErrorMessage = "عذراً، حدث خطأ ما أثناء معالجة رسالتك. يرجى المحاولة مرة أخرى بعد قليل."

	BridgeForwardFailedMessage = "⚠️ تعذر توصيل رسالتك إلى الطرف الآخر حالياً. يرجى إعادة المحاولة بعد قليل.\n" +
		"لإنهاء المحادثة المباشرة اكتب /end_bridge_mode"

	NonTextPlaceholder = "📎 [أرسل الطرف الآخر مرفقاً لا يمكن تمريره، يرجى إرسال المحتوى نصياً]"

	UnsupportedMessage = "عذراً، أستطيع قراءة الرسائل النصية فقط حالياً. اكتب طلبك وسأساعدك 🙏"

	RejectFreelancerMessage = "لا مشكلة 👍 أخبرني ما الذي لم يناسبك في هذا المستقل (السعر، الخبرة، التخصص) لأقترح عليك بديلاً أفضل."

	SearchMoreMessage = "تمام 🔍 صف لي طلبك بتفاصيل أكثر (نوع الخدمة، الميزانية، الموعد المطلوب) وسأبحث لك عن مستقلين آخرين."

	UnknownButtonMessage = "عذراً، لم أتعرف على هذا الخيار. اكتب طلبك وسأساعدك."

	NoFreelancerMessage = "عذراً، لم أجد مستقلاً متاحاً يناسب طلبك حالياً 🙏 سنبلغك فور توفر مستقل مناسب، ويمكنك وصف طلبك بطريقة أخرى."

	PaymentExpiredMessage = "⏰ انتهت صلاحية رابط الدفع الخاص بطلبك.\n" +
		"يمكنك متابعة المحادثة الآن، وإذا رغبت بنفس المستقل أخبرني لأرسل لك رابطاً جديداً."

	HistoryClearedMessage = "🗑️ تم مسح سجل المحادثة. كيف يمكنني مساعدتك؟"

	ResetMessage = "🔄 تمت إعادة تعيين المحادثة وإلغاء أي عملية دفع معلقة. كيف يمكنني مساعدتك؟"

	NoBridgeMessage = "لا توجد محادثة مباشرة نشطة حالياً."

	BridgeEndedMessage = "✅ تم إنهاء المحادثة المباشرة. يمكنك الآن التحدث مع المساعد مجدداً."

	BridgeEndedByPeerMessage = "ℹ️ أنهى الطرف الآخر المحادثة المباشرة. يمكنك الآن التحدث مع المساعد مجدداً."
)

const (
	acceptButtonTitle = "✅ موافق"
	rejectButtonTitle = "❌ غير مناسب"
	searchButtonTitle = "🔍 ابحث عن غيره"
)

func recommendationButtons() []whatsapp.Button {
	return []whatsapp.Button{
		{ID: ButtonAcceptFreelancer, Title: acceptButtonTitle},
		{ID: ButtonRejectFreelancer, Title: rejectButtonTitle},
	}
}

func searchMoreButtons() []whatsapp.Button {
	return []whatsapp.Button{{ID: ButtonSearchMore, Title: searchButtonTitle}}
}

func paymentLinkMessage(freelancerName, request string, amount float64, currency, url string, expiresIn time.Duration) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ ممتاز! تم اختيار المستقل: *%s*\n", freelancerName)
	if request != "" {
		fmt.Fprintf(&sb, "📝 طلبك: %s\n", request)
	}
	fmt.Fprintf(&sb, "💳 رسوم التواصل: %.3f %s\n\n", amount, currency)
	fmt.Fprintf(&sb, "لإتمام الدفع اضغط على الرابط:\n%s\n\n", url)
	fmt.Fprintf(&sb, "⏰ الرابط صالح لمدة %d ساعة. بعد الدفع سيتم توصيلك بالمستقل مباشرة.", int(expiresIn.Hours()))
	return sb.String()
}

func paymentConfirmedClientMessage(freelancerName string, bridged bool) string {
	msg := fmt.Sprintf("🎉 تم تأكيد الدفع بنجاح! شكراً لك.\nتم ربطك بالمستقل *%s*.\n", freelancerName)
	if bridged {
		return msg + "💬 أي رسالة ترسلها هنا ستصل إليه مباشرة، ورده سيصلك هنا.\nلإنهاء المحادثة المباشرة اكتب /end_bridge_mode"
	}
	return msg + "📞 سيتواصل معك المستقل قريباً."
}

func paymentConfirmedFreelancerMessage(clientName string, bridged bool) string {
	if clientName == "" {
		clientName = "عميل جديد"
	}
	msg := fmt.Sprintf("🔔 لديك عميل جديد: %s\nتم تأكيد الدفع.", clientName)
	if bridged {
		return msg + " رسائلك هنا ستصل إليه مباشرة، ولإنهاء المحادثة اكتب /end_bridge_mode"
	}
	return msg + " تفاصيل الطلب متاحة في لوحة التحكم."
}

func helpMessage(commands []Command) string {
	var sb strings.Builder
	sb.WriteString("📋 الأوامر المتاحة:\n")
	for _, c := range commands {
		fmt.Fprintf(&sb, "%s - %s\n", c.Token, c.Description)
	}
	sb.WriteString("\nأو اكتب طلبك مباشرة وسأقترح عليك المستقل المناسب.")
	return sb.String()
}

func infoMessage(state models.PaymentState, info *models.PaymentInfo, session *models.BridgeSession, phone string, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("ℹ️ حالة طلبك:\n")
	switch {
	case state == models.PaymentStateAwaitingPayment && info != nil:
		fmt.Fprintf(&sb, "💳 بانتظار الدفع للمستقل *%s*\n", info.Freelancer.Name)
		fmt.Fprintf(&sb, "المبلغ: %.3f %s\n", info.Amount, info.Currency)
		if info.PaymentURL != "" {
			fmt.Fprintf(&sb, "رابط الدفع: %s\n", info.PaymentURL)
		}
		if left := info.ExpiresAt.Sub(now); left > 0 {
			fmt.Fprintf(&sb, "⏰ ينتهي الرابط خلال %s\n", formatRemaining(left))
		} else {
			sb.WriteString("⏰ انتهت صلاحية الرابط\n")
		}
	default:
		sb.WriteString("لا توجد عملية دفع معلقة.\n")
	}
	if session != nil {
		name := session.FreelancerName
		if !session.IsClient(phone) {
			name = session.ClientName
		}
		if name == "" {
			name = "الطرف الآخر"
		}
		fmt.Fprintf(&sb, "💬 محادثة مباشرة نشطة مع %s", name)
	} else {
		sb.WriteString("لا توجد محادثة مباشرة نشطة.")
	}
	return sb.String()
}

func formatRemaining(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%d ساعة و%d دقيقة", h, m)
	}
	return fmt.Sprintf("%d دقيقة", m)
}
