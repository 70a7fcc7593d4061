package agent

import (
	"embed"
	"fmt"

	"github.com/imobflow/imobflow/internal/models"
)

//go:embed prompts/*.txt
var promptFS embed.FS

var systemPrompts = mustLoadPrompts()

func mustLoadPrompts() map[models.AgentType]string {
	prompts := make(map[models.AgentType]string)
	for _, t := range []models.AgentType{models.AgentTypeGeneral, models.AgentTypeLeadQualifier, models.AgentTypePropertyAdvisor} {
		b, err := promptFS.ReadFile("prompts/" + string(t) + ".txt")
		if err != nil {
			panic(fmt.Sprintf("missing system prompt for %s: %v", t, err))
		}
		prompts[t] = string(b)
	}
	return prompts
}

// SystemPrompt returns the canned instructions for an agent type.
func SystemPrompt(t models.AgentType) string {
	if p, ok := systemPrompts[t]; ok {
		return p
	}
	return systemPrompts[models.AgentTypeGeneral]
}

const demoReply = `O assistente de IA está em modo demonstração porque a imobiliária ainda não configurou um provedor de IA.

Para ativar o assistente, o responsável pela imobiliária deve informar o provedor (OpenAI ou OpenRouter), o modelo e a chave de API nas configurações da imobiliária (PATCH /api/tenants/{id} com o campo "ai"). Depois disso, envie uma nova mensagem nesta sessão.`

const maxTurnsReply = "Não consegui concluir a tarefa dentro do limite de etapas permitido. Tente dividir o pedido em partes menores ou reformule a pergunta."
