// Package twiml builds the instruction documents returned to the telephony
// provider. Documents are assembled from typed verbs and serialized with
// encoding/xml so utterance text is always escaped.
package twiml

import (
	"bytes"
	"encoding/xml"
)

const header = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// Response is the root instruction document.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

type playVerb struct {
	XMLName xml.Name `xml:"Play"`
	Loop    int      `xml:"loop,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type sayVerb struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type pauseVerb struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type hangupVerb struct {
	XMLName xml.Name `xml:"Hangup"`
}

type gatherVerb struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr"`
	Method        string   `xml:"method,attr"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Language      string   `xml:"language,attr,omitempty"`
	Verbs         []any
}

// New returns an empty response document.
func New() *Response {
	return &Response{}
}

// Play appends a Play verb referencing an audio artifact URL.
func (r *Response) Play(url string) *Response {
	r.Verbs = append(r.Verbs, playVerb{URL: url})
	return r
}

// Say appends a Say verb spoken by the provider's built-in voice.
func (r *Response) Say(text string) *Response {
	r.Verbs = append(r.Verbs, sayVerb{Text: text})
	return r
}

// SayVoice appends a Say verb with an explicit voice.
func (r *Response) SayVoice(voice, text string) *Response {
	r.Verbs = append(r.Verbs, sayVerb{Voice: voice, Text: text})
	return r
}

// Pause appends a Pause verb of the given length in seconds.
func (r *Response) Pause(seconds int) *Response {
	r.Verbs = append(r.Verbs, pauseVerb{Length: seconds})
	return r
}

// Hangup appends a Hangup verb.
func (r *Response) Hangup() *Response {
	r.Verbs = append(r.Verbs, hangupVerb{})
	return r
}

// Gather describes a speech-input solicitation.
type Gather struct {
	Action        string
	SpeechTimeout string
	Language      string
	verbs         []any
}

// Play nests a Play verb inside the Gather, spoken while listening.
func (g *Gather) Play(url string) *Gather {
	g.verbs = append(g.verbs, playVerb{URL: url})
	return g
}

// Say nests a Say verb inside the Gather.
func (g *Gather) Say(text string) *Gather {
	g.verbs = append(g.verbs, sayVerb{Text: text})
	return g
}

// SayVoice nests a Say verb with an explicit voice inside the Gather.
func (g *Gather) SayVoice(voice, text string) *Gather {
	g.verbs = append(g.verbs, sayVerb{Voice: voice, Text: text})
	return g
}

// GatherSpeech appends a Gather verb soliciting caller speech, posted back to
// action as a speech webhook.
func (r *Response) GatherSpeech(g Gather) *Response {
	timeout := g.SpeechTimeout
	if timeout == "" {
		timeout = "auto"
	}
	r.Verbs = append(r.Verbs, gatherVerb{
		Input:         "speech",
		Action:        g.Action,
		Method:        "POST",
		SpeechTimeout: timeout,
		Language:      g.Language,
		Verbs:         g.verbs,
	})
	return r
}

// Render serializes the document with the XML declaration.
func (r *Response) Render() (string, error) {
	var buf bytes.Buffer
	buf.WriteString(header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MarshalXML flattens the verb list under <Response>.
func (r *Response) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "Response"}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, v := range r.Verbs {
		if err := e.Encode(v); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

func (g gatherVerb) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "Gather"}
	start.Attr = append(start.Attr,
		xml.Attr{Name: xml.Name{Local: "input"}, Value: g.Input},
		xml.Attr{Name: xml.Name{Local: "action"}, Value: g.Action},
		xml.Attr{Name: xml.Name{Local: "method"}, Value: g.Method},
	)
	if g.SpeechTimeout != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "speechTimeout"}, Value: g.SpeechTimeout})
	}
	if g.Language != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "language"}, Value: g.Language})
	}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, v := range g.Verbs {
		if err := e.Encode(v); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}
