package keyrelease

// entitlementScript is executed by the key-release network, not by this
// client. It re-derives entitlement from ledger state on its own RPC
// connection: it lists every entitlement pass owned by userAddress, keeps
// the ones for listingId and grants only if at least one is unexpired.
// Field names follow the authoritative on-chain schema (snake_case).
const entitlementScript = `
const go = async () => {
  const resp = await ledgerRpc("suix_getOwnedObjects", [
    jsParams.userAddress,
    {
      filter: { StructType: jsParams.packageId + "::market::EntitlementPass" },
      options: { showContent: true },
    },
  ]);
  const now = Date.now();
  const granted = (resp.data || []).some((obj) => {
    const fields = obj.data?.content?.fields;
    if (!fields) return false;
    return (
      fields.listing_id === jsParams.listingId &&
      Number(fields.expires_at) > now
    );
  });
  setResponse({ granted });
};
go();
`
