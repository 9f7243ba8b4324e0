package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/vetter/internal/fetcher"
	"github.com/ppiankov/vetter/internal/model"
	"github.com/ppiankov/vetter/internal/vetting"
)

// VerifyInput defines parameters for the vetter_verify tool.
type VerifyInput struct {
	Username string `json:"username" jsonschema:"account username to verify"`
	Remote   *bool  `json:"remote,omitempty" jsonschema:"merge the remote CSV denylist (defaults to the server setting)"`
}

// VerifyOutput is the verdict for one account.
type VerifyOutput struct {
	UserID        int64        `json:"user_id,omitempty"`
	Username      string       `json:"username"`
	Status        string       `json:"status,omitempty"`
	Disqualifying bool         `json:"disqualifying"`
	Flags         []model.Flag `json:"flags"`
	ProfileURL    string       `json:"profile_url,omitempty"`
	DataComplete  bool         `json:"data_complete"`
	RefHash       string       `json:"ref_hash,omitempty"`
	Error         string       `json:"error,omitempty"`
	ErrorKind     string       `json:"error_kind,omitempty"`
}

// ReferenceInput is empty; no parameters needed.
type ReferenceInput struct{}

// ReferenceOutput describes the loaded reference data.
type ReferenceOutput = vetting.ReferenceInfo

func (s *Server) handleVerify(ctx context.Context, req *mcpsdk.CallToolRequest, input VerifyInput) (*mcpsdk.CallToolResult, VerifyOutput, error) {
	remote := s.remote
	if input.Remote != nil {
		remote = *input.Remote
	}

	rep, err := s.svc.Verify(ctx, input.Username, vetting.Options{Remote: remote, Source: "mcp"})
	if err != nil {
		out := VerifyOutput{
			Username:  input.Username,
			Flags:     []model.Flag{},
			Error:     err.Error(),
			ErrorKind: fetcher.Kind(err),
		}
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	return nil, VerifyOutput{
		UserID:        rep.Profile.UserID,
		Username:      rep.Profile.Username,
		Status:        string(rep.Verdict.Status),
		Disqualifying: rep.Verdict.Disqualifying,
		Flags:         rep.Verdict.Flags,
		ProfileURL:    rep.ProfileURL,
		DataComplete:  rep.Profile.DataComplete,
		RefHash:       rep.RefHash,
	}, nil
}

func (s *Server) handleReference(ctx context.Context, req *mcpsdk.CallToolRequest, input ReferenceInput) (*mcpsdk.CallToolResult, ReferenceOutput, error) {
	return nil, s.svc.Reference(), nil
}
