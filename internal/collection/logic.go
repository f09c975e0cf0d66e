package collection

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
)

const (
	VERSION_V1 = "v1"
	VERSION_V2 = "v2"
)

var (
	OwnershipTransferredEvent = chain.NewEvent("OwnershipTransferred", "address previousOwner indexed", "address newOwner indexed")
	AddItemEvent              = chain.NewEvent("AddItem", "uint256 itemId indexed", "uint256 maxSupply", "address beneficiary", "string metadata")
	IssueEvent                = chain.NewEvent("Issue", "address beneficiary indexed", "uint256 tokenId indexed", "uint256 itemId indexed", "uint256 issuedId")
	BaseURIEvent              = chain.NewEvent("BaseURI", "string oldBaseURI", "string newBaseURI")
)

// Logic is the code of a collection implementation. It runs against the
// storage of the proxy that delegates to it.
type Logic interface {
	Version() string
	Initialize(tx *chain.Tx, s *Storage, payload []byte) error
	TokenURI(s *Storage, chainID *big.Int, tokenID *big.Int) (string, error)
	AddItems(tx *chain.Tx, s *Storage, items []ItemPayload) error
	IssueTokens(tx *chain.Tx, s *Storage, beneficiaries []common.Address, itemIDs []*big.Int) error
	SetBaseURI(tx *chain.Tx, s *Storage, baseURI string) error
	TransferOwnership(tx *chain.Tx, s *Storage, newOwner common.Address) error
	TransferFrom(tx *chain.Tx, s *Storage, from, to common.Address, tokenID *big.Int) error
	SafeTransferFrom(tx *chain.Tx, s *Storage, from, to common.Address, tokenID *big.Int, data []byte) error
	Approve(tx *chain.Tx, s *Storage, to common.Address, tokenID *big.Int) error
	SetApprovalForAll(tx *chain.Tx, s *Storage, operator common.Address, approved bool) error
}

// V1 is the first collection implementation
type V1 struct{}

// NewV1 returns the v1 logic
func NewV1() *V1 {
	return &V1{}
}

func (l *V1) Version() string {
	return VERSION_V1
}

// Initialize sets up a fresh instance. The caller becomes the owner.
func (l *V1) Initialize(tx *chain.Tx, s *Storage, payload []byte) error {
	if s.Initialized {
		return domain.NewRevert(domain.ErrInvalidInput, "Initializable: contract is already initialized")
	}

	p, err := DecodeInitPayload(payload)
	if err != nil {
		return domain.NewRevert(domain.ErrInvalidInput, "initialize: INVALID_PAYLOAD")
	}
	if p.Creator == (common.Address{}) {
		return domain.NewRevert(domain.ErrInvalidInput, "initialize: INVALID_CREATOR")
	}

	chain.Store(tx, &s.Initialized, true)
	chain.Store(tx, &s.Name, p.Name)
	chain.Store(tx, &s.Symbol, p.Symbol)
	chain.Store(tx, &s.BaseURI, p.BaseURI)
	chain.Store(tx, &s.Creator, p.Creator)

	if err := l.setOwner(tx, s, tx.Sender()); err != nil {
		return err
	}
	return l.addItems(tx, s, p.Items)
}

// TokenURI returns {baseURI}{chainId}/{contract}/{itemId}/{issuedId}
func (l *V1) TokenURI(s *Storage, chainID *big.Int, tokenID *big.Int) (string, error) {
	if !s.Ledger.Exists(tokenID) {
		return "", domain.NewRevert(domain.ErrNonexistentToken, "tokenURI: INVALID_TOKEN_ID")
	}

	itemID, issuedID, err := domain.DecodeTokenID(tokenID)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%s/%s/%s/%s",
		s.BaseURI,
		chainID.String(),
		strings.ToLower(s.Ledger.Address().Hex()),
		itemID.String(),
		issuedID.String(),
	), nil
}

func (l *V1) AddItems(tx *chain.Tx, s *Storage, items []ItemPayload) error {
	if err := onlyOwner(tx, s); err != nil {
		return err
	}
	return l.addItems(tx, s, items)
}

// IssueTokens mints the next token of each item to the matching beneficiary
func (l *V1) IssueTokens(tx *chain.Tx, s *Storage, beneficiaries []common.Address, itemIDs []*big.Int) error {
	if len(beneficiaries) != len(itemIDs) {
		return domain.NewRevert(domain.ErrInvalidInput, "issueTokens: LENGTH_MISMATCH")
	}
	if tx.Sender() != s.Owner && tx.Sender() != s.Creator {
		return domain.NewRevert(domain.ErrUnauthorized, "issueTokens: CALLER_CAN_NOT_MINT")
	}

	for i, beneficiary := range beneficiaries {
		if err := l.issueToken(tx, s, beneficiary, itemIDs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (l *V1) SetBaseURI(tx *chain.Tx, s *Storage, baseURI string) error {
	if err := onlyOwner(tx, s); err != nil {
		return err
	}

	old := s.BaseURI
	chain.Store(tx, &s.BaseURI, baseURI)
	return tx.Emit(s.Ledger.Address(), BaseURIEvent, old, baseURI)
}

func (l *V1) TransferOwnership(tx *chain.Tx, s *Storage, newOwner common.Address) error {
	if err := onlyOwner(tx, s); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return domain.NewRevert(domain.ErrInvalidInput, "Ownable: new owner is the zero address")
	}
	return l.setOwner(tx, s, newOwner)
}

func (l *V1) TransferFrom(tx *chain.Tx, s *Storage, from, to common.Address, tokenID *big.Int) error {
	return s.Ledger.TransferFrom(tx, from, to, tokenID)
}

func (l *V1) SafeTransferFrom(tx *chain.Tx, s *Storage, from, to common.Address, tokenID *big.Int, data []byte) error {
	return s.Ledger.SafeTransferFrom(tx, from, to, tokenID, data)
}

func (l *V1) Approve(tx *chain.Tx, s *Storage, to common.Address, tokenID *big.Int) error {
	return s.Ledger.Approve(tx, to, tokenID)
}

func (l *V1) SetApprovalForAll(tx *chain.Tx, s *Storage, operator common.Address, approved bool) error {
	return s.Ledger.SetApprovalForAll(tx, operator, approved)
}

func (l *V1) setOwner(tx *chain.Tx, s *Storage, owner common.Address) error {
	previous := s.Owner
	chain.Store(tx, &s.Owner, owner)
	return tx.Emit(s.Ledger.Address(), OwnershipTransferredEvent, previous, owner)
}

func (l *V1) addItems(tx *chain.Tx, s *Storage, items []ItemPayload) error {
	for _, p := range items {
		if p.MaxSupply == nil || p.MaxSupply.Sign() <= 0 {
			return domain.NewRevert(domain.ErrInvalidInput, "addItem: INVALID_MAX_SUPPLY")
		}

		price := new(big.Int)
		if p.Price != nil {
			price.Set(p.Price)
		}
		item := &Item{
			MaxSupply:   new(big.Int).Set(p.MaxSupply),
			TotalSupply: new(big.Int),
			Price:       price,
			Beneficiary: p.Beneficiary,
			Metadata:    p.Metadata,
			ContentHash: p.ContentHash,
		}

		itemID := big.NewInt(int64(len(s.Items)))
		chain.Store(tx, &s.Items, append(s.Items, item))

		if err := tx.Emit(s.Ledger.Address(), AddItemEvent, itemID, item.MaxSupply, item.Beneficiary, item.Metadata); err != nil {
			return err
		}
	}
	return nil
}

func (l *V1) issueToken(tx *chain.Tx, s *Storage, beneficiary common.Address, itemID *big.Int) error {
	if itemID == nil || !itemID.IsInt64() || itemID.Sign() < 0 || itemID.Int64() >= int64(len(s.Items)) {
		return domain.NewRevert(domain.ErrInvalidInput, "issueToken: INVALID_ITEM_ID")
	}

	item := s.Items[itemID.Int64()]
	if item.TotalSupply.Cmp(item.MaxSupply) >= 0 {
		return domain.NewRevert(domain.ErrInvalidInput, "issueToken: ITEM_EXHAUSTED")
	}

	issuedID := new(big.Int).Add(item.TotalSupply, big.NewInt(1))
	tokenID, err := domain.EncodeTokenID(itemID, issuedID)
	if err != nil {
		return err
	}

	chain.Store(tx, &item.TotalSupply, issuedID)
	if err := s.Ledger.Mint(tx, beneficiary, tokenID); err != nil {
		return err
	}

	return tx.Emit(s.Ledger.Address(), IssueEvent, beneficiary, tokenID, itemID, issuedID)
}

// V2 changes the token URI layout to {baseURI}{chainId}/{contract}/{tokenId}
type V2 struct {
	V1
}

// NewV2 returns the v2 logic
func NewV2() *V2 {
	return &V2{}
}

func (l *V2) Version() string {
	return VERSION_V2
}

func (l *V2) TokenURI(s *Storage, chainID *big.Int, tokenID *big.Int) (string, error) {
	if !s.Ledger.Exists(tokenID) {
		return "", domain.NewRevert(domain.ErrNonexistentToken, "tokenURI: INVALID_TOKEN_ID")
	}

	return fmt.Sprintf("%s%s/%s/%s",
		s.BaseURI,
		chainID.String(),
		strings.ToLower(s.Ledger.Address().Hex()),
		tokenID.String(),
	), nil
}

func onlyOwner(tx *chain.Tx, s *Storage) error {
	if tx.Sender() != s.Owner {
		return domain.NewRevert(domain.ErrUnauthorized, "Ownable: caller is not the owner")
	}
	return nil
}
