package live

import (
	"context"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	ToolSwitchActiveAgent       = "switchActiveAgent"
	ToolGetCurrentDateTime      = "getCurrentDateTimeBrazil"
	ToolActivateCamera          = "activateCamera"
	ToolDeactivateCamera        = "deactivateCamera"
	ToolActivateScreenSharing   = "activateScreenSharing"
	ToolDeactivateScreenSharing = "deactivateScreenSharing"
)

// Actions are the UI side effects the built-in tools trigger. Nil fields are
// skipped. Each runs on its own goroutine.
type Actions struct {
	SwitchAgent      func(name string)
	SetCamera        func(on bool)
	SetScreenSharing func(on bool)
}

// BuiltinDeclarations returns the declarations of the built-in tools in the
// order they are offered to the model.
func BuiltinDeclarations() []ToolDeclaration {
	empty := func() *Schema { return &Schema{Type: "object", Properties: map[string]*Schema{}} }
	return []ToolDeclaration{
		{
			Name: ToolSwitchActiveAgent,
			Description: "OBRIGATÓRIO: Use esta ferramenta IMEDIATAMENTE quando o usuário pedir para ativar, mudar, trocar ou falar " +
				"com um agente, modo, persona ou especialista específico. NÃO responda apenas com texto.",
			Parameters: &Schema{
				Type: "object",
				Properties: map[string]*Schema{
					"agentName": {
						Type:        "string",
						Description: "O nome, cargo ou palavra-chave do agente que o usuário mencionou. Ex: 'gestor de trafego', 'google ads', 'padrao'.",
					},
				},
				Required: []string{"agentName"},
			},
		},
		{
			Name:        ToolGetCurrentDateTime,
			Description: "Retorna a data e hora atuais no fuso horário de Brasília (Brasil).",
			Parameters:  empty(),
		},
		{Name: ToolActivateCamera, Description: "Activates the user camera when requested.", Parameters: empty()},
		{Name: ToolDeactivateCamera, Description: "Deactivates the user camera when requested.", Parameters: empty()},
		{Name: ToolActivateScreenSharing, Description: "Activates screen sharing when requested.", Parameters: empty()},
		{Name: ToolDeactivateScreenSharing, Description: "Deactivates screen sharing when requested.", Parameters: empty()},
	}
}

// RegisterBuiltins registers the persona, camera, screen sharing and clock
// tools on d. now defaults to time.Now.
func RegisterBuiltins(d *Dispatcher, a Actions, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	handlers := map[string]ToolHandler{
		ToolSwitchActiveAgent: func(_ context.Context, args map[string]any) (map[string]any, error) {
			name, _ := args["agentName"].(string)
			name = strings.TrimSpace(name)
			if name == "" {
				return nil, fmt.Errorf("agentName is required")
			}
			fire(a.SwitchAgent, name)
			return result(fmt.Sprintf("Success. The system has switched to agent '%s'. The user now sees the confirmation message.", name)), nil
		},
		ToolGetCurrentDateTime: func(context.Context, map[string]any) (map[string]any, error) {
			return result(FormatBrazilTime(now())), nil
		},
		ToolActivateCamera: func(context.Context, map[string]any) (map[string]any, error) {
			fire(a.SetCamera, true)
			return result("Camera activated"), nil
		},
		ToolDeactivateCamera: func(context.Context, map[string]any) (map[string]any, error) {
			fire(a.SetCamera, false)
			return result("Camera deactivated"), nil
		},
		ToolActivateScreenSharing: func(context.Context, map[string]any) (map[string]any, error) {
			fire(a.SetScreenSharing, true)
			return result("Screen sharing activated"), nil
		},
		ToolDeactivateScreenSharing: func(context.Context, map[string]any) (map[string]any, error) {
			fire(a.SetScreenSharing, false)
			return result("Screen sharing deactivated"), nil
		},
	}
	for _, decl := range BuiltinDeclarations() {
		d.Register(decl, handlers[decl.Name])
	}
}

func fire[T any](fn func(T), v T) {
	if fn != nil {
		go fn(v)
	}
}

func result(s string) map[string]any {
	return map[string]any{"result": s}
}

var (
	weekdaysPT = [...]string{"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado"}
	monthsPT   = [...]string{"janeiro", "fevereiro", "março", "abril", "maio", "junho", "julho", "agosto", "setembro", "outubro", "novembro", "dezembro"}
)

// FormatBrazilTime renders t in Brasília time, long pt-BR style:
// "sexta-feira, 17 de outubro de 2025 às 14:05:09 -03".
func FormatBrazilTime(t time.Time) string {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		loc = time.FixedZone("BRT", -3*60*60)
	}
	t = t.In(loc)
	return fmt.Sprintf("%s, %d de %s de %d às %s",
		weekdaysPT[t.Weekday()], t.Day(), monthsPT[t.Month()-1], t.Year(), t.Format("15:04:05 MST"))
}
