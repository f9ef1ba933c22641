package services

import (
	"errors"

	"github.com/Thaynan-souza/raphietro-atelier/internal/repositories"
)

var (
	// ErrClientNotFound indicates no client matches the tax id.
	ErrClientNotFound = errors.New("order: client not found")
	// ErrTaxIDIncomplete indicates the tax id does not have 11 digits yet.
	ErrTaxIDIncomplete = errors.New("order: tax id incomplete")
	// ErrInvalidServicePrice indicates the catalog price is not a valid non-negative number.
	ErrInvalidServicePrice = errors.New("order: invalid service price")
	// ErrServiceNotFound indicates the service id is not in the catalog.
	ErrServiceNotFound = errors.New("order: service not found")
	// ErrStaffNotFound indicates the staff id does not exist.
	ErrStaffNotFound = errors.New("order: staff not found")
	// ErrStaffNotEligible indicates the staff role cannot be assigned to orders.
	ErrStaffNotEligible = errors.New("order: staff not eligible")
	// ErrMissingClient indicates submission without a bound client.
	ErrMissingClient = errors.New("order: missing client")
	// ErrMissingStaff indicates submission without an assigned staff member.
	ErrMissingStaff = errors.New("order: missing staff")
	// ErrEmptyCart indicates submission with no line items.
	ErrEmptyCart = errors.New("order: empty cart")
	// ErrOrderNotFound indicates the order id does not exist.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrInvalidStatus indicates an unknown lifecycle status.
	ErrInvalidStatus = errors.New("order: invalid status")
	// ErrUnauthenticated indicates no acting staff identity was supplied.
	ErrUnauthenticated = errors.New("order: unauthenticated")
	// ErrTransitionCancelled signals a declined reopen. Nothing was written.
	ErrTransitionCancelled = errors.New("order: transition cancelled")
	// ErrPersistence wraps backend failures. It is never retried automatically.
	ErrPersistence = errors.New("order: persistence failure")

	// ErrInvalidInput indicates a malformed registration or request payload.
	ErrInvalidInput = errors.New("catalog: invalid input")
	// ErrForbidden indicates the identity lacks the role required for the action.
	ErrForbidden = errors.New("catalog: forbidden")
	// ErrClientDuplicate indicates a client with the same tax id already exists.
	ErrClientDuplicate = errors.New("catalog: client already registered")
	// ErrStaffEmailTaken indicates an auth account already uses the email.
	ErrStaffEmailTaken = errors.New("catalog: staff email already registered")
)

var notices = []struct {
	err     error
	message string
}{
	{ErrClientNotFound, "Cliente não encontrado. Verifique o CPF ou cadastre o cliente."},
	{ErrTaxIDIncomplete, "O CPF deve conter 11 dígitos."},
	{ErrInvalidServicePrice, "O preço do serviço selecionado é inválido."},
	{ErrServiceNotFound, "Serviço não encontrado."},
	{ErrStaffNotFound, "Costureira não encontrada."},
	{ErrStaffNotEligible, "Por favor, selecione uma costureira válida."},
	{ErrMissingClient, "Por favor, selecione um cliente válido."},
	{ErrMissingStaff, "Por favor, selecione uma costureira válida."},
	{ErrEmptyCart, "Por favor, adicione pelo menos um serviço."},
	{ErrOrderNotFound, "Pedido não encontrado."},
	{ErrInvalidStatus, "Status de pedido inválido."},
	{ErrUnauthenticated, "Você precisa estar logado para alterar o status de um pedido."},
	{ErrTransitionCancelled, "Alteração de status cancelada."},
	{ErrPersistence, "Não foi possível salvar as alterações. Tente novamente."},
	{ErrInvalidInput, "Dados inválidos. Verifique os campos e tente novamente."},
	{ErrForbidden, "Você não tem permissão para realizar esta ação."},
	{ErrClientDuplicate, "Já existe um cliente cadastrado com este CPF."},
	{ErrStaffEmailTaken, "Este e-mail já está em uso."},
}

// Notice returns the message shown to staff for err, or "" when err is not
// one of the service conditions.
func Notice(err error) string {
	if err == nil {
		return ""
	}
	for _, n := range notices {
		if errors.Is(err, n.err) {
			return n.message
		}
	}
	return ""
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
