package token

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/roledir/roledir/internal/shared"
)

// keySigner signs challenges with in-process private key material parsed
// from a PEM block.
type keySigner struct {
	key crypto.Signer
}

// newKeySigner parses PEM key material. Encrypted material without a
// passphrase yields an AuthError with PassphraseRequired set: the caller
// supplied a key but it is unusable without more input.
func newKeySigner(pemBytes []byte, passphrase string) (*keySigner, error) {
	var (
		parsed any
		err    error
	)
	if passphrase != "" {
		parsed, err = ssh.ParseRawPrivateKeyWithPassphrase(pemBytes, []byte(passphrase))
	} else {
		parsed, err = ssh.ParseRawPrivateKey(pemBytes)
	}
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, &shared.AuthError{Kind: shared.CredentialKeyfile, PassphraseRequired: true, Err: err}
		}
		return nil, &shared.AuthError{Kind: shared.CredentialKeyfile, Err: fmt.Errorf("parse private key: %w", err)}
	}
	signer, ok := parsed.(crypto.Signer)
	if !ok {
		// ed25519 keys parse to a pointer.
		if k, isEd := parsed.(*ed25519.PrivateKey); isEd {
			signer = *k
			ok = true
		}
	}
	if !ok {
		return nil, &shared.AuthError{Kind: shared.CredentialKeyfile, Err: fmt.Errorf("unsupported private key type %T", parsed)}
	}
	return &keySigner{key: signer}, nil
}

func (s *keySigner) Sign(data []byte) ([]byte, error) {
	if _, isEd := s.key.Public().(ed25519.PublicKey); isEd {
		return s.key.Sign(rand.Reader, data, crypto.Hash(0))
	}
	sum := sha256.Sum256(data)
	return s.key.Sign(rand.Reader, sum[:], crypto.SHA256)
}

func (s *keySigner) Kind() shared.CredentialKind { return shared.CredentialKeyfile }

// agentSigner signs challenges with a key held by an ssh agent. The key
// material never leaves the agent process.
type agentSigner struct {
	ag  agent.Agent
	key *agent.Key
}

func (s *agentSigner) Sign(data []byte) ([]byte, error) {
	sig, err := s.ag.Sign(s.key, data)
	if err != nil {
		return nil, err
	}
	return sig.Blob, nil
}

func (s *agentSigner) Kind() shared.CredentialKind { return shared.CredentialAgent }

// AgentDialer connects to a signing agent. The default implementation
// dials the unix socket in SSH_AUTH_SOCK; tests inject their own.
type AgentDialer func() (agent.Agent, io.Closer, error)

// DialSSHAgent connects to the agent at $SSH_AUTH_SOCK.
func DialSSHAgent() (agent.Agent, io.Closer, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, nil, errors.New("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, nil, fmt.Errorf("dial ssh agent: %w", err)
	}
	return agent.NewClient(conn), conn, nil
}

// pickAgentKey selects the named key from the agent, or the sole loaded
// key when no name is given. Returns nil when no usable key is found.
func pickAgentKey(ag agent.Agent, name string) (*agent.Key, error) {
	keys, err := ag.List()
	if err != nil {
		return nil, fmt.Errorf("list agent keys: %w", err)
	}
	if name == "" {
		if len(keys) == 0 {
			return nil, nil
		}
		return keys[0], nil
	}
	for _, k := range keys {
		if k.Comment == name {
			return k, nil
		}
	}
	return nil, nil
}
