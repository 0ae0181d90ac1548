package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/Unknown-Bytes/formerr/internal/forms/entity"
)

// Optional 区分字段缺失、显式 null 与具体值
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(bytes.TrimSpace(data)) == "null" {
		o.Null = true
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// SettingsPatch 设置白名单：出现在 JSON 中的字段才会被修改
type SettingsPatch struct {
	ThankYouMessage    Optional[string]    `json:"thankYouMessage"`
	RedirectURL        Optional[string]    `json:"redirectUrl"`
	PasswordProtected  Optional[bool]      `json:"passwordProtected"`
	FormPassword       Optional[string]    `json:"formPassword"`
	EmailNotifications Optional[bool]      `json:"emailNotifications"`
	WebhookURL         Optional[string]    `json:"webhookUrl"`
	ExpirationDate     Optional[time.Time] `json:"expirationDate"`
}

// DecodeSettingsPatch 解析设置补丁，未知字段直接拒绝
func DecodeSettingsPatch(r io.Reader) (SettingsPatch, error) {
	var patch SettingsPatch
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		msg := err.Error()
		if strings.HasPrefix(msg, "json: unknown field ") {
			return patch, NewInvalidError("Unknown settings field " + strings.TrimPrefix(msg, "json: unknown field "))
		}
		return patch, NewInvalidError("Invalid settings payload: " + msg)
	}
	return patch, nil
}

func (p SettingsPatch) apply(form *entity.Form) error {
	if p.ThankYouMessage.Set {
		msg := strings.TrimSpace(p.ThankYouMessage.Value)
		if p.ThankYouMessage.Null || msg == "" {
			msg = entity.DefaultThankYouMessage
		}
		form.ThankYouMessage = msg
	}

	if p.RedirectURL.Set {
		u, err := nullableURL("redirectUrl", p.RedirectURL)
		if err != nil {
			return err
		}
		form.RedirectURL = u
	}
	if p.WebhookURL.Set {
		u, err := nullableURL("webhookUrl", p.WebhookURL)
		if err != nil {
			return err
		}
		form.WebhookURL = u
	}

	if p.EmailNotifications.Set {
		if p.EmailNotifications.Null {
			return NewInvalidError("emailNotifications must be a boolean")
		}
		form.EmailNotifications = p.EmailNotifications.Value
	}

	if p.ExpirationDate.Set {
		if p.ExpirationDate.Null {
			form.ExpiresAt = nil
		} else {
			t := p.ExpirationDate.Value
			form.ExpiresAt = &t
		}
	}

	protected := form.PasswordProtected
	if p.PasswordProtected.Set {
		if p.PasswordProtected.Null {
			return NewInvalidError("passwordProtected must be a boolean")
		}
		protected = p.PasswordProtected.Value
	}
	if p.FormPassword.Set && !p.FormPassword.Null && p.FormPassword.Value != "" {
		if !protected {
			return NewInvalidError("formPassword requires passwordProtected")
		}
		hashed, err := hashPassword(p.FormPassword.Value)
		if err != nil {
			return err
		}
		form.FormPassword = hashed
	}
	if protected && form.FormPassword == "" {
		return NewInvalidError("formPassword is required when passwordProtected is enabled")
	}
	if !protected {
		form.FormPassword = ""
	}
	form.PasswordProtected = protected
	return nil
}

func nullableURL(field string, v Optional[string]) (*string, error) {
	s := strings.TrimSpace(v.Value)
	if v.Null || s == "" {
		return nil, nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, NewInvalidError(fmt.Sprintf("%s must be an http(s) URL", field))
	}
	return &s, nil
}
