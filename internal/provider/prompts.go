package provider

import (
	"strings"

	"github.com/falabot/server/domain/entities"
	"github.com/falabot/server/domain/repositories"
)

const (
	// CorrectSentinel marks a transcription that needed no correction
	CorrectSentinel = "✅ Seu áudio está correto!"
	// CorrectionPrefix introduces a corrected payload
	CorrectionPrefix = "Você quis dizer: "
	// MusicPassThrough replaces the correction when the audio is a song fragment
	MusicPassThrough = "🎵 Fragmento musical detectado, correção não aplicada."
)

const classificationPolicy = `Analise o texto e identifique se contém:
1. Fragmento de música (letra, melodia, ritmo)
2. Pergunta de conhecimento geral
3. Apenas conversa normal

Responda apenas com:
- "MUSIC" se contiver música
- "QUESTION" se for pergunta de conhecimento
- "CONVERSATION" se for conversa normal`

const correctionPolicy = `Você é um corretor gramatical especializado em português brasileiro.

INSTRUÇÕES ESPECÍFICAS:
- Corrija e melhore o texto
- Use linguagem formal
- Seja gentil na correção
- Mantenha o sentido original
- Preserve a naturalidade da fala

Formato da resposta:
- Se houver correções: "` + CorrectionPrefix + `[texto corrigido]"
- Se não houver correções: "` + CorrectSentinel + `"

IMPORTANTE: Use linguagem formal e seja gentil em todas as correções.`

var conversePolicies = map[entities.ContentType]string{
	entities.ContentTypeMusic: `Você é um assistente musical amigável.
Se o usuário mencionar música, cantar, ou falar sobre música:
- Identifique a música se possível
- Comente sobre o gênero musical
- Mantenha um tom alegre e musical
- Responda no mesmo idioma do usuário
- Seja natural e conversacional`,
	entities.ContentTypeQuestion: `Você é um assistente de conhecimento geral.
Se o usuário fizer uma pergunta:
- Responda de forma educativa e clara
- Use linguagem acessível
- Responda no mesmo idioma do usuário
- Mantenha um tom amigável e útil`,
	entities.ContentTypeConversation: `Você é um assistente conversacional amigável.
Mantenha uma conversa natural e envolvente:
- Responda no mesmo idioma do usuário
- Seja amigável e interessado
- Faça perguntas de volta quando apropriado
- Mantenha o contexto da conversa`,
}

var cannedReplies = map[entities.ContentType]string{
	entities.ContentTypeMusic:        "Que legal! Você gosta de música? Qual é seu gênero favorito?",
	entities.ContentTypeQuestion:     "Interessante pergunta! Posso ajudar com isso.",
	entities.ContentTypeConversation: "Entendo! Continue me contando mais sobre isso.",
}

var (
	classificationOptions = repositories.CompletionOptions{Temperature: 0.1, MaxTokens: 50}
	correctionOptions     = repositories.CompletionOptions{Temperature: 0.3, MaxTokens: 500}
	converseOptions       = repositories.CompletionOptions{Temperature: 0.7, MaxTokens: 300}
)

// ConversePolicy returns the system policy for a content type
func ConversePolicy(contentType entities.ContentType) string {
	if policy, ok := conversePolicies[contentType]; ok {
		return policy
	}
	return conversePolicies[entities.ContentTypeConversation]
}

// CannedReply is the fixed reply used when no conversational provider answered
func CannedReply(contentType entities.ContentType) string {
	if reply, ok := cannedReplies[contentType]; ok {
		return reply
	}
	return cannedReplies[entities.ContentTypeConversation]
}

// HasCorrections reports whether corrector output carries a correction
func HasCorrections(correction string) bool {
	return !strings.Contains(correction, "✅")
}

// SpokenCorrection strips the correction prefix so only the corrected sentence is spoken
func SpokenCorrection(correction string) string {
	return strings.TrimSpace(strings.Replace(correction, CorrectionPrefix, "", 1))
}
