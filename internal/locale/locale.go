// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package locale provides translated display strings.
//
// Locale only changes what the user reads. It never affects requests sent
// to the backend.
package locale

import (
	"golang.org/x/text/language"
)

// Key identifies a display string.
type Key string

const (
	Title              Key = "title"
	Thinking           Key = "thinking"
	EnterAPIKey        Key = "enterApiKey"
	InputPlaceholder   Key = "inputPlaceholder"
	WelcomeMessage     Key = "welcomeMessage"
	WelcomeInstruction Key = "welcomeInstruction"
	Busy               Key = "busy"
	NoContent          Key = "noContent"
	AttachmentAdded    Key = "attachmentAdded"
	AttachmentRemoved  Key = "attachmentRemoved"
	ResponseFailed     Key = "responseFailed"
	Cancelled          Key = "cancelled"
	ModelChanged       Key = "modelChanged"
	You                Key = "you"
	Assistant          Key = "assistant"
	UnknownCommand     Key = "unknownCommand"
	ConfigReloaded     Key = "configReloaded"
	ThemeChanged       Key = "themeChanged"
	LanguageChanged    Key = "languageChanged"
	APIKeySet          Key = "apiKeySet"
	Exported           Key = "exported"
	HelpText           Key = "helpText"
)

// Default is the fallback language.
const Default = "en"

var catalog = map[string]map[Key]string{
	"en": {
		Title:              "Stock Market AI Assistant",
		Thinking:           "Thinking...",
		EnterAPIKey:        "Please enter your Gemini API key",
		InputPlaceholder:   "Ask about stocks, or /attach a chart...",
		WelcomeMessage:     "Hi! I can help you analyze stock charts and market data.",
		WelcomeInstruction: "Ask a question or attach a chart image with /attach <path>.",
		Busy:               "Please wait for the current answer to finish.",
		NoContent:          "Type a message or attach an image first.",
		AttachmentAdded:    "Attached",
		AttachmentRemoved:  "Attachment removed",
		ResponseFailed:     "The response failed",
		Cancelled:          "Response cancelled",
		ModelChanged:       "Model set to",
		You:                "You",
		Assistant:          "Gemini",
		UnknownCommand:     "Unknown command. Type /help for the list.",
		ConfigReloaded:     "Configuration reloaded",
		ThemeChanged:       "Theme set to",
		LanguageChanged:    "Language set to",
		APIKeySet:          "API key set for this session",
		Exported:           "Conversation exported to",
		HelpText: "/attach <path>  attach a chart image\n" +
			"/detach         remove the attachment\n" +
			"/model [id]     show or change the model\n" +
			"/export <file>  save as .md, .json or .html\n" +
			"/key <api-key>  set the Gemini API key\n" +
			"/theme <mode>   dark, light or auto\n" +
			"/lang <code>    en, pl, pt, cs, es, de\n" +
			"/quit           exit (Ctrl+C when idle)\n" +
			"Esc cancels a streaming answer.",
	},
	"pl": {
		Title:              "Asystent AI Rynku Akcji",
		Thinking:           "Myślę...",
		EnterAPIKey:        "Wprowadź swój klucz API Gemini",
		InputPlaceholder:   "Zapytaj o akcje lub dołącz wykres przez /attach...",
		WelcomeMessage:     "Cześć! Pomogę Ci analizować wykresy giełdowe i dane rynkowe.",
		WelcomeInstruction: "Zadaj pytanie lub dołącz obraz wykresu poleceniem /attach <ścieżka>.",
		Busy:               "Poczekaj, aż bieżąca odpowiedź się zakończy.",
		NoContent:          "Najpierw wpisz wiadomość lub dołącz obraz.",
		AttachmentAdded:    "Dołączono",
		AttachmentRemoved:  "Usunięto załącznik",
		ResponseFailed:     "Odpowiedź nie powiodła się",
		Cancelled:          "Anulowano odpowiedź",
		ModelChanged:       "Wybrany model",
		You:                "Ty",
		Assistant:          "Gemini",
		UnknownCommand:     "Nieznane polecenie. Wpisz /help, aby zobaczyć listę.",
		ConfigReloaded:     "Wczytano ponownie konfigurację",
		ThemeChanged:       "Motyw ustawiony na",
		LanguageChanged:    "Język ustawiony na",
		APIKeySet:          "Ustawiono klucz API dla tej sesji",
		Exported:           "Rozmowę wyeksportowano do",
		HelpText: "/attach <ścieżka>  dołącz obraz wykresu\n" +
			"/detach            usuń załącznik\n" +
			"/model [id]        pokaż lub zmień model\n" +
			"/export <plik>     zapisz jako .md, .json lub .html\n" +
			"/key <klucz-api>   ustaw klucz API Gemini\n" +
			"/theme <tryb>      dark, light lub auto\n" +
			"/lang <kod>        en, pl, pt, cs, es, de\n" +
			"/quit              wyjście (Ctrl+C w spoczynku)\n" +
			"Esc przerywa odpowiedź.",
	},
	"pt": {
		Title:              "Assistente de IA do Mercado de Ações",
		Thinking:           "Pensando...",
		EnterAPIKey:        "Insira sua chave de API do Gemini",
		InputPlaceholder:   "Pergunte sobre ações ou anexe um gráfico com /attach...",
		WelcomeMessage:     "Olá! Posso ajudar a analisar gráficos de ações e dados de mercado.",
		WelcomeInstruction: "Faça uma pergunta ou anexe um gráfico com /attach <caminho>.",
		Busy:               "Aguarde a resposta atual terminar.",
		NoContent:          "Digite uma mensagem ou anexe uma imagem primeiro.",
		AttachmentAdded:    "Anexado",
		AttachmentRemoved:  "Anexo removido",
		ResponseFailed:     "A resposta falhou",
		Cancelled:          "Resposta cancelada",
		ModelChanged:       "Modelo definido como",
		You:                "Você",
		Assistant:          "Gemini",
		UnknownCommand:     "Comando desconhecido. Digite /help para ver a lista.",
		ConfigReloaded:     "Configuração recarregada",
		ThemeChanged:       "Tema definido como",
		LanguageChanged:    "Idioma definido como",
		APIKeySet:          "Chave de API definida para esta sessão",
		Exported:           "Conversa exportada para",
		HelpText: "/attach <caminho>  anexar um gráfico\n" +
			"/detach            remover o anexo\n" +
			"/model [id]        mostrar ou mudar o modelo\n" +
			"/export <arquivo>  salvar como .md, .json ou .html\n" +
			"/key <chave>       definir a chave de API do Gemini\n" +
			"/theme <modo>      dark, light ou auto\n" +
			"/lang <código>     en, pl, pt, cs, es, de\n" +
			"/quit              sair (Ctrl+C quando ocioso)\n" +
			"Esc cancela uma resposta em andamento.",
	},
	"cs": {
		Title:              "AI asistent pro akciový trh",
		Thinking:           "Přemýšlím...",
		EnterAPIKey:        "Zadejte svůj API klíč Gemini",
		InputPlaceholder:   "Zeptejte se na akcie nebo připojte graf přes /attach...",
		WelcomeMessage:     "Ahoj! Pomohu vám analyzovat akciové grafy a tržní data.",
		WelcomeInstruction: "Položte otázku nebo připojte graf příkazem /attach <cesta>.",
		Busy:               "Počkejte na dokončení aktuální odpovědi.",
		NoContent:          "Nejprve napište zprávu nebo připojte obrázek.",
		AttachmentAdded:    "Připojeno",
		AttachmentRemoved:  "Příloha odebrána",
		ResponseFailed:     "Odpověď selhala",
		Cancelled:          "Odpověď zrušena",
		ModelChanged:       "Model nastaven na",
		You:                "Vy",
		Assistant:          "Gemini",
		UnknownCommand:     "Neznámý příkaz. Seznam zobrazí /help.",
		ConfigReloaded:     "Konfigurace znovu načtena",
		ThemeChanged:       "Motiv nastaven na",
		LanguageChanged:    "Jazyk nastaven na",
		APIKeySet:          "API klíč nastaven pro tuto relaci",
		Exported:           "Konverzace exportována do",
		HelpText: "/attach <cesta>  připojit obrázek grafu\n" +
			"/detach          odebrat přílohu\n" +
			"/model [id]      zobrazit nebo změnit model\n" +
			"/export <soubor> uložit jako .md, .json nebo .html\n" +
			"/key <klíč>      nastavit API klíč Gemini\n" +
			"/theme <režim>   dark, light nebo auto\n" +
			"/lang <kód>      en, pl, pt, cs, es, de\n" +
			"/quit            konec (Ctrl+C v klidu)\n" +
			"Esc zruší probíhající odpověď.",
	},
	"es": {
		Title:              "Asistente de IA del Mercado de Valores",
		Thinking:           "Pensando...",
		EnterAPIKey:        "Introduce tu clave de API de Gemini",
		InputPlaceholder:   "Pregunta sobre acciones o adjunta un gráfico con /attach...",
		WelcomeMessage:     "¡Hola! Puedo ayudarte a analizar gráficos bursátiles y datos de mercado.",
		WelcomeInstruction: "Haz una pregunta o adjunta un gráfico con /attach <ruta>.",
		Busy:               "Espera a que termine la respuesta actual.",
		NoContent:          "Escribe un mensaje o adjunta una imagen primero.",
		AttachmentAdded:    "Adjuntado",
		AttachmentRemoved:  "Adjunto eliminado",
		ResponseFailed:     "La respuesta falló",
		Cancelled:          "Respuesta cancelada",
		ModelChanged:       "Modelo establecido en",
		You:                "Tú",
		Assistant:          "Gemini",
		UnknownCommand:     "Comando desconocido. Escribe /help para ver la lista.",
		ConfigReloaded:     "Configuración recargada",
		ThemeChanged:       "Tema establecido en",
		LanguageChanged:    "Idioma establecido en",
		APIKeySet:          "Clave de API establecida para esta sesión",
		Exported:           "Conversación exportada a",
		HelpText: "/attach <ruta>   adjuntar un gráfico\n" +
			"/detach          quitar el adjunto\n" +
			"/model [id]      ver o cambiar el modelo\n" +
			"/export <archivo> guardar como .md, .json o .html\n" +
			"/key <clave>     establecer la clave de API de Gemini\n" +
			"/theme <modo>    dark, light o auto\n" +
			"/lang <código>   en, pl, pt, cs, es, de\n" +
			"/quit            salir (Ctrl+C en reposo)\n" +
			"Esc cancela una respuesta en curso.",
	},
	"de": {
		Title:              "KI-Assistent für den Aktienmarkt",
		Thinking:           "Denke nach...",
		EnterAPIKey:        "Bitte gib deinen Gemini-API-Schlüssel ein",
		InputPlaceholder:   "Frag nach Aktien oder hänge mit /attach ein Diagramm an...",
		WelcomeMessage:     "Hallo! Ich helfe dir, Aktiencharts und Marktdaten zu analysieren.",
		WelcomeInstruction: "Stelle eine Frage oder hänge ein Chartbild mit /attach <Pfad> an.",
		Busy:               "Bitte warte, bis die aktuelle Antwort fertig ist.",
		NoContent:          "Gib zuerst eine Nachricht ein oder hänge ein Bild an.",
		AttachmentAdded:    "Angehängt",
		AttachmentRemoved:  "Anhang entfernt",
		ResponseFailed:     "Die Antwort ist fehlgeschlagen",
		Cancelled:          "Antwort abgebrochen",
		ModelChanged:       "Modell gesetzt auf",
		You:                "Du",
		Assistant:          "Gemini",
		UnknownCommand:     "Unbekannter Befehl. /help zeigt die Liste.",
		ConfigReloaded:     "Konfiguration neu geladen",
		ThemeChanged:       "Design gesetzt auf",
		LanguageChanged:    "Sprache gesetzt auf",
		APIKeySet:          "API-Schlüssel für diese Sitzung gesetzt",
		Exported:           "Unterhaltung exportiert nach",
		HelpText: "/attach <Pfad>   Chartbild anhängen\n" +
			"/detach          Anhang entfernen\n" +
			"/model [id]      Modell anzeigen oder ändern\n" +
			"/export <Datei>  als .md, .json oder .html speichern\n" +
			"/key <Schlüssel> Gemini-API-Schlüssel setzen\n" +
			"/theme <Modus>   dark, light oder auto\n" +
			"/lang <Code>     en, pl, pt, cs, es, de\n" +
			"/quit            beenden (Ctrl+C im Leerlauf)\n" +
			"Esc bricht eine laufende Antwort ab.",
	},
}

// Supported lists the available languages in display order.
var Supported = []string{"en", "pl", "pt", "cs", "es", "de"}

var matcher = language.NewMatcher(tags())

func tags() []language.Tag {
	out := make([]language.Tag, len(Supported))
	for i, code := range Supported {
		out[i] = language.Make(code)
	}
	return out
}

// IsSupported reports whether code names an available language exactly.
func IsSupported(code string) bool {
	_, ok := catalog[code]
	return ok
}

// Match returns the closest supported language for a BCP 47 tag such as
// "pt-BR" or "de_AT". Unknown or empty tags map to Default.
func Match(tag string) string {
	if tag == "" {
		return Default
	}
	t, err := language.Parse(tag)
	if err != nil {
		return Default
	}
	_, idx, conf := matcher.Match(t)
	if conf == language.No {
		return Default
	}
	return Supported[idx]
}

// Catalog resolves display strings for one language.
type Catalog struct {
	lang string
}

// For returns the catalog for the closest match of tag.
func For(tag string) Catalog {
	return Catalog{lang: Match(tag)}
}

// Lang returns the resolved language code.
func (c Catalog) Lang() string {
	if c.lang == "" {
		return Default
	}
	return c.lang
}

// T returns the string for key, falling back to English and then to the
// key itself.
func (c Catalog) T(key Key) string {
	if s, ok := catalog[c.Lang()][key]; ok {
		return s
	}
	if s, ok := catalog[Default][key]; ok {
		return s
	}
	return string(key)
}
