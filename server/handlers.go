package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/poiesic/docquery/ai"
)

type uploadResponse struct {
	SessionID string `json:"session_id"`
}

type queryRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	K         int    `json:"k,omitempty"`
	Model     string `json:"model,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	Stream    bool   `json:"stream,omitempty"`
}

type queryResponse struct {
	Answer string `json:"answer"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
	Model    string        `json:"model,omitempty"`
	APIKey   string        `json:"api_key,omitempty"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// upload ingests a multipart document and returns its session token.
func (s *Server) upload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}

	svc, err := s.service(c.FormValue("api_key"), "")
	if err != nil {
		return err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	token, err := svc.Upload(c.Request().Context(), file)
	if err != nil {
		return err
	}

	s.logger.Info("document uploaded", "token", token, "filename", fileHeader.Filename)
	return c.JSON(http.StatusOK, uploadResponse{SessionID: token})
}

// query answers a question about an uploaded document, grounded in its most
// relevant segments. With stream set, the answer arrives as plain text
// chunks instead of one JSON body.
func (s *Server) query(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	svc, err := s.service(req.APIKey, req.Model)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if !req.Stream {
		answer, err := svc.Ask(ctx, req.SessionID, req.Query, req.K)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, queryResponse{Answer: answer})
	}

	return s.streamText(c, func(fn ai.StreamFunc) error {
		return svc.AskStream(ctx, req.SessionID, req.Query, req.K, fn)
	})
}

// chat forwards a free conversation to the chat model and streams the reply.
func (s *Server) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages are required")
	}

	messages := make([]ai.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = ai.Message{Role: ai.Role(m.Role), Content: m.Content}
	}

	svc, err := s.service(req.APIKey, req.Model)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	return s.streamText(c, func(fn ai.StreamFunc) error {
		return svc.ChatStream(ctx, messages, fn)
	})
}

// streamText writes chunks to the response as they arrive. Failures before
// the first chunk still surface through the JSON error handler; afterwards
// the connection is simply cut short.
func (s *Server) streamText(c echo.Context, run func(ai.StreamFunc) error) error {
	resp := c.Response()
	flusher, _ := resp.Writer.(http.Flusher)

	committed := false
	err := run(func(_ context.Context, chunk []byte) error {
		if !committed {
			resp.Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
			resp.Header().Set(echo.HeaderCacheControl, "no-cache")
			resp.WriteHeader(http.StatusOK)
			committed = true
		}
		if _, err := resp.Write(chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil && committed {
		s.logger.Error("stream aborted mid-response", "err", err)
		return nil
	}
	return err
}
