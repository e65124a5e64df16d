package core

import "fmt"

// Customer-facing copy. The storefront is Brazilian, so all of it is pt-BR.
const (
	assistantSystemPrompt = `Você é um assistente virtual de uma loja de veículos chamada AutoElite. Seja sempre educado, profissional e prestativo.

Suas funções:
1. Responder dúvidas sobre veículos e condições de pagamento
2. Identificar se o cliente quer pagar à vista ou financiar
3. Se financiamento: perguntar sobre renda e explicar que precisamos verificar o score de crédito
4. Se à vista: agendar visita à loja
5. Transferir para um vendedor quando necessário

Regras:
- Seja conciso e direto
- Use emojis com moderação
- Sempre pergunte como pode ajudar
- Se o cliente quer financiar, peça o CPF para "simulação"
- Nunca invente informações sobre preços ou condições específicas`

	upstreamFailureReply = "Um de nossos vendedores entrará em contato em breve!"
	emptyCompletionReply = "Como posso ajudá-lo?"
	sendFallbackReply    = "Desculpe, estou com dificuldades técnicas no momento. Um de nossos vendedores entrará em contato em breve!"
	beginFailureNotice   = "Erro ao iniciar conversa"
)

func degradedReply(customerName string) string {
	return fmt.Sprintf("Obrigado pela mensagem, %s! Um de nossos vendedores entrará em contato em breve.", customerName)
}

func welcomeMessage(customerName, vehicleName string) string {
	return fmt.Sprintf("Olá %s! 👋 Sou o assistente virtual da AutoElite. Vi que você tem interesse no %s. Como posso ajudá-lo hoje?\n\n"+
		"Você pode me perguntar sobre:\n• Condições de pagamento\n• Financiamento\n• Agendar uma visita\n• Informações do veículo",
		customerName, vehicleName)
}
