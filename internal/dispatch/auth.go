package dispatch

import (
	"context"

	"github.com/chenyukaola/feeds-service/internal/model"
	"github.com/chenyukaola/feeds-service/internal/transport"
)

func handleSignIn(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, _ model.UserInfo) error {
	var p signInParams
	if err := d.unmarshalParams(req, &p); err != nil {
		return err
	}
	challengeJwt, err := d.auth.SignIn(p.Doc)
	if err != nil {
		return err
	}
	return d.fan.SendResponse(ctx, nodeID, req.TsxID, signInResult{ChallengeJwt: challengeJwt})
}

func handleDidAuth(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, _ model.UserInfo) error {
	var p didAuthParams
	if err := d.unmarshalParams(req, &p); err != nil {
		return err
	}
	accessToken, err := d.auth.DidAuth(p.PresentationJwt)
	if err != nil {
		return err
	}
	return d.fan.SendResponse(ctx, nodeID, req.TsxID, didAuthResult{AccessToken: accessToken})
}
