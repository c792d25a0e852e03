package portal

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fclairamb/ntlsync/internal/apperrors"
)

const (
	samlLoginPath = "/auth-saml/saml/login"
	samlSSOPath   = "/auth-saml/saml/SSO"
	samlAppID     = "_140_1"
	defaultTab    = "/webapps/portal/execute/defaultTab"
	samlSigAlg    = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	formsAuth     = "FormsAuthentication"
)

// Login runs the SAML single sign-on flow and keeps the resulting BbRouter session.
//
// The flow is: portal root (anonymous BbRouter), SAML login redirect to the identity provider,
// login form, credentials POST (answered with a SAMLResponse), SAMLResponse POST to the portal.
//
//nolint:funlen // sequential protocol steps
func (c *Client) Login(ctx context.Context, username, password string) error {
	c.logger.DebugContext(ctx, "logging in", "username", username)

	if _, err := c.do(ctx, request{method: http.MethodGet, url: c.baseURL + "/"}); err != nil {
		return fmt.Errorf("open portal: %w", err)
	}
	if c.sessionCookie() == "" {
		return apperrors.ErrNoSessionCookie
	}

	redirect := url.Values{}
	redirect.Set("apId", samlAppID)
	redirect.Set("redirectUrl", c.baseURL+defaultTab)
	samlResp, err := c.do(ctx, request{method: http.MethodGet, url: c.baseURL + samlLoginPath, query: redirect})
	if err != nil {
		return fmt.Errorf("start saml login: %w", err)
	}

	// The redirect lands on the identity provider with the signed SAML request.
	loginURL := samlResp.URL
	samlParams, err := requireParams(loginURL.Query(), "SAMLRequest", "Signature")
	if err != nil {
		return err
	}
	idpURL := loginURL.Scheme + "://" + loginURL.Host + loginURL.Path

	formPage, err := c.do(ctx, request{
		method: http.MethodGet,
		url:    idpURL,
		query: url.Values{
			"SAMLRequest": {samlParams["SAMLRequest"]},
			"SigAlg":      {samlSigAlg},
			"Signature":   {samlParams["Signature"]},
		},
		headers: map[string]string{"Referer": c.baseURL + "/"},
	})
	if err != nil {
		return fmt.Errorf("get login form: %w", err)
	}

	action, err := parseLoginFormAction(formPage.Body)
	if err != nil {
		return err
	}
	actionURL, err := url.Parse(action)
	if err != nil {
		return fmt.Errorf("parse login form action: %w", err)
	}
	formParams, err := requireParams(actionURL.Query(), "SAMLRequest", "Signature", "client-request-id")
	if err != nil {
		return err
	}

	authPage, err := c.do(ctx, request{
		method: http.MethodPost,
		url:    idpURL,
		query: url.Values{
			"SAMLRequest":       {formParams["SAMLRequest"]},
			"SigAlg":            {samlSigAlg},
			"Signature":         {formParams["Signature"]},
			"client-request-id": {formParams["client-request-id"]},
		},
		form: url.Values{
			"UserName":   {username},
			"Password":   {password},
			"AuthMethod": {formsAuth},
		},
		headers: map[string]string{"Referer": loginURL.String()},
	})
	if err != nil {
		return fmt.Errorf("post credentials: %w", err)
	}

	samlResponse, err := parseSAMLResponse(authPage.Body)
	if err != nil {
		return err
	}

	referer := loginURL.String() + "&client-request-id=" + formParams["client-request-id"]
	if _, err := c.do(ctx, request{
		method:  http.MethodPost,
		url:     c.baseURL + samlSSOPath,
		form:    url.Values{"SAMLResponse": {samlResponse}},
		headers: map[string]string{"Referer": referer},
	}); err != nil {
		return fmt.Errorf("post saml response: %w", err)
	}

	token := c.sessionCookie()
	if !strings.Contains(token, "user") {
		return apperrors.ErrNotAuthenticated
	}
	c.session = token

	c.logger.DebugContext(ctx, "logged in", "username", username)
	return nil
}

func requireParams(values url.Values, names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		v := values.Get(name)
		if v == "" {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrMissingSAMLParam, name)
		}
		out[name] = v
	}
	return out, nil
}

func parseLoginFormAction(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse login page: %w", err)
	}
	action, ok := doc.Find("form").First().Attr("action")
	if !ok || action == "" {
		return "", apperrors.ErrLoginFormNotFound
	}
	return action, nil
}

func parseSAMLResponse(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse saml page: %w", err)
	}

	input := doc.Find(`input[name="SAMLResponse"]`).First()
	if input.Length() == 0 {
		input = doc.Find("input").First()
	}
	value, ok := input.Attr("value")
	if !ok || value == "" {
		return "", apperrors.ErrSAMLResponseNotFound
	}
	return value, nil
}
