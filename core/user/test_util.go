package user

import (
	"context"

	"github.com/trezcool/pueriangeli/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service that sends password reset mails synchronously.
func NewServiceMock(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &serviceMock{
		service: service{
			repo:    repo,
			mailSvc: mailSvc,
			tokens:  newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
		},
	}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}

// MakeResetToken exposes the password reset token of usr to tests.
func MakeResetToken(conf *core.Config, usr User) string {
	return newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta).makeToken(usr)
}
