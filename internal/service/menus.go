package service

import (
	"fmt"

	"github.com/zapsub/bot-server-go/internal/model"
	"github.com/zapsub/bot-server-go/internal/transport"
)

// Submenu names. Empty string is the main menu.
const (
	submenuTrialDevice  = "trial_device"
	submenuSignupDevice = "signup_device"
	submenuReferral     = "referral"
	submenuRenewPeriod  = "renew_period"
	submenuRenewPayment = "renew_payment"
	submenuPoints       = "points"
	submenuSupport      = "support"
)

// submenuSpec declares a submenu's valid inputs and where "0" returns to.
// Freeform submenus accept any text (used to capture referral codes).
type submenuSpec struct {
	prev     string
	allow    []string
	freeform bool
}

var submenus = map[string]submenuSpec{
	submenuTrialDevice:  {allow: []string{"1", "2", "3"}},
	submenuSignupDevice: {allow: []string{"1", "2", "3"}},
	submenuReferral:     {freeform: true},
	submenuRenewPeriod:  {allow: []string{"1", "2", "3", "4"}},
	submenuRenewPayment: {prev: submenuRenewPeriod, allow: []string{"1", "2"}},
	submenuPoints:       {allow: []string{"1", "2"}},
	submenuSupport:      {allow: []string{"1", "2"}},
}

func (s submenuSpec) allows(token string) bool {
	if s.freeform {
		return true
	}
	for _, a := range s.allow {
		if a == token {
			return true
		}
	}
	return false
}

const (
	msgInvalidOption = "Opção inválida. Digite 0 para voltar."
	msgHandoff       = "Certo! Um atendente vai continuar a conversa com você em instantes. 👩‍💻"
	msgChargeFailed  = "Não conseguimos gerar sua cobrança agora. 😕 Tente novamente em alguns minutos ou digite 5 para falar com um atendente."
	msgPaymentWait   = "Ainda não identificamos o pagamento. O PIX pode levar alguns instantes; tente novamente em breve ou digite 2 para cancelar."
	msgPaymentOK     = "Pagamento confirmado! ✅ Sua assinatura foi renovada. Obrigado!"
	msgChargeCancel  = "Cobrança cancelada. Quando quiser renovar é só me chamar!"
)

func prospectMenuContent() Content {
	return Content{
		Kind:  ContentMenu,
		Title: "Bem-vindo! 👋",
		Text:  "Ainda não encontrei uma assinatura para este número. Como posso ajudar?",
		Options: []transport.Option{
			{ID: "1", Label: "Conhecer os planos"},
			{ID: "2", Label: "Teste grátis"},
			{ID: "3", Label: "Assinar agora"},
			{ID: "4", Label: "Tenho código de indicação"},
			{ID: "5", Label: "Falar com atendente"},
		},
	}
}

func clientMenuContent(client *model.Client) Content {
	text := "Escolha uma opção:"
	if client.Trial {
		text = "Seu período de teste está ativo. Escolha uma opção:"
	}
	return Content{
		Kind:  ContentMenu,
		Title: fmt.Sprintf("Olá, %s! 👋", firstName(client.Name)),
		Text:  text,
		Options: []transport.Option{
			{ID: "1", Label: "Ver vencimento"},
			{ID: "2", Label: "Renovar assinatura"},
			{ID: "3", Label: "Pontos (telas extras)"},
			{ID: "4", Label: "Suporte técnico"},
			{ID: "5", Label: "Falar com atendente"},
		},
	}
}

func expiredMenuContent(client *model.Client) Content {
	return Content{
		Kind:  ContentMenu,
		Title: fmt.Sprintf("Olá, %s!", firstName(client.Name)),
		Text: fmt.Sprintf(
			"Sua assinatura venceu em %s. Escolha uma opção para reativar:",
			client.Vencimento.Format("02/01/2006"),
		),
		Options: []transport.Option{
			{ID: "1", Label: "Desbloqueio de confiança"},
			{ID: "2", Label: "Renovar agora"},
			{ID: "3", Label: "Falar com atendente"},
		},
	}
}

func deviceMenuContent(trial bool) Content {
	title := "Assinar agora"
	text := "Em quantas telas você vai assistir?"
	if trial {
		title = "Teste grátis"
		text = "Vamos preparar seu teste! Em quantas telas você vai assistir?"
	}
	return Content{
		Kind:  ContentMenu,
		Title: title,
		Text:  text,
		Options: []transport.Option{
			{ID: "1", Label: "1 tela"},
			{ID: "2", Label: "2 telas"},
			{ID: "3", Label: "3 telas"},
		},
	}
}

func renewPeriodContent(baseCents int64) Content {
	label := func(months int, suffix string) string {
		return fmt.Sprintf("%d %s - %s", months, suffix, FormatBRL(RenewalPriceCents(baseCents, months)))
	}
	return Content{
		Kind:  ContentMenu,
		Title: "Renovação",
		Text:  "Escolha o período. Períodos maiores têm desconto:",
		Options: []transport.Option{
			{ID: "1", Label: label(1, "mês")},
			{ID: "2", Label: label(3, "meses") + " (10% off)"},
			{ID: "3", Label: label(6, "meses") + " (20% off)"},
			{ID: "4", Label: label(12, "meses") + " (30% off)"},
		},
	}
}

func renewPaymentContent(copyPaste string, amountCents int64, months int) Content {
	return Content{
		Kind:  ContentMenu,
		Title: "Pagamento via PIX",
		Text: fmt.Sprintf(
			"Renovação de %d mês(es) por %s.\n\nCopie o código abaixo e pague no app do seu banco:\n\n%s",
			months, FormatBRL(amountCents), copyPaste,
		),
		Options: []transport.Option{
			{ID: "1", Label: "Já paguei"},
			{ID: "2", Label: "Cancelar"},
		},
	}
}

func pointsMenuContent(points int) Content {
	return Content{
		Kind:  ContentMenu,
		Title: "Pontos (telas extras)",
		Text:  fmt.Sprintf("Você tem %d ponto(s) ativo(s). Cada ponto libera uma tela extra.", points),
		Options: []transport.Option{
			{ID: "1", Label: "Adicionar ponto"},
			{ID: "2", Label: "Remover ponto"},
		},
	}
}

func supportMenuContent() Content {
	return Content{
		Kind:  ContentMenu,
		Title: "Suporte técnico",
		Text:  "Vamos resolver! Primeiro, feche e abra o aplicativo novamente. Funcionou?",
		Options: []transport.Option{
			{ID: "1", Label: "Sim, resolvido"},
			{ID: "2", Label: "Ainda com problema"},
		},
	}
}

func plansInfoText(baseCents int64) string {
	return fmt.Sprintf(
		"Nossos planos:\n\n📺 Plano mensal: %s por tela\n🎁 3 meses: 10%% de desconto\n🎁 6 meses: 20%% de desconto\n🎁 12 meses: 30%% de desconto\n\nDigite 2 para um teste grátis ou 3 para assinar agora!",
		FormatBRL(baseCents),
	)
}

func firstName(name string) string {
	if name == "" {
		return "tudo bem"
	}
	for i, r := range name {
		if r == ' ' {
			return name[:i]
		}
	}
	return name
}
