package dispatcher

import (
	"fmt"
	"strings"

	"github.com/falabot/server/domain/entities"
)

// User facing texts, pt-BR
const (
	MessageWelcome          = "Olá! Sou um chatbot baseado em inteligência artificial, desenvolvido pelo Departamento de Engenharia de Computação da Unoesc Chapecó. Meu objetivo é facilitar a comunicação por meio de áudios e auxiliar na pronúncia de diversos idiomas."
	MessageProcessing       = "🎧 Processando seu áudio..."
	MessageGenericError     = "❌ Desculpe, ocorreu um erro ao processar seu áudio. Por favor, tente novamente."
	MessageNotAudio         = "🎵 Por favor, envie apenas mensagens de áudio."
	MessagePong             = "🏓 Pong! Bot está funcionando!"
	MessageAudioDisabled    = "🔊 Funcionalidade de áudio está temporariamente desabilitada."
	MessageContextCleared   = "🧹 Contexto de conversa limpo! Podemos começar uma nova conversa."
	MessageConnectivity     = "⚠️ Erro de conexão com o serviço. Por favor, tente novamente em alguns instantes."
	MessageCorruptedAudio   = "⚠️ O arquivo de áudio parece estar corrompido. Por favor, tente enviar novamente."
	MessageAudioSendFailure = "⚠️ Não foi possível enviar o áudio com a correção, mas o texto está acima."
)

// TooLongMessage tells the user the limit, expressed in whole minutes when possible
func TooLongMessage(maxSeconds int) string {
	if maxSeconds > 0 && maxSeconds%60 == 0 {
		minutes := maxSeconds / 60
		unit := "minutos"
		if minutes == 1 {
			unit = "minuto"
		}
		return fmt.Sprintf("⏱️ O áudio é muito longo. Por favor, envie áudios de até %d %s.", minutes, unit)
	}
	return fmt.Sprintf("⏱️ O áudio é muito longo. Por favor, envie áudios de até %d segundos.", maxSeconds)
}

// FormatReply renders the pipeline result as the chat reply
func FormatReply(result *entities.PipelineResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎯 *Transcrição:*\n_\"%s\"_\n\n", result.Transcription)
	fmt.Fprintf(&b, "📝 *Correção:*\n%s\n\n", result.CorrectedText)

	switch result.ContentType {
	case entities.ContentTypeMusic:
		b.WriteString("🎵 *Detectado:* Fragmento de música\n\n")
	case entities.ContentTypeQuestion:
		b.WriteString("❓ *Detectado:* Pergunta de conhecimento\n\n")
	}

	fmt.Fprintf(&b, "💬 *Conversa:*\n%s", result.Reply)
	return b.String()
}

type command int

const (
	commandNone command = iota
	commandPing
	commandClear
	commandTestAudio
)

func parseCommand(text string) command {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "ping":
		return commandPing
	case "limpar", "clear":
		return commandClear
	case "testaudio":
		return commandTestAudio
	default:
		return commandNone
	}
}
